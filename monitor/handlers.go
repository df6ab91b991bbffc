package monitor

import (
	"fmt"
	"os"
	"path/filepath"
)

// Control protocol handlers. Each returns the full response text; the
// listener ships it to the client verbatim.

func (m *Monitor) Status() string {
	m.writeStatus()
	b, err := m.statusJSON()
	if err != nil {
		return "ERROR cannot read status\n"
	}
	return string(b)
}

func (m *Monitor) Yield(devPath string) string {
	idx := m.findPort(devPath)
	if idx < 0 {
		return fmt.Sprintf("ERROR port not found: %s\n", devPath)
	}
	mp := m.ports[idx]

	if mp.yielded {
		return fmt.Sprintf("OK already yielded %s\n", devPath)
	}

	if mp.ser.Fd() >= 0 {
		m.poller.del(mp.ser.Fd())
	}
	if mp.ser.MasterFd() >= 0 {
		m.poller.del(mp.ser.MasterFd())
	}
	m.closeSerial(mp)

	mp.yielded = true
	mp.log.Marker("PORT YIELDED (released for flashing)")
	log.Info("yielded", "dev", devPath, "label", mp.identity.Label)
	m.writeStatus()

	return fmt.Sprintf("OK yielded %s\n", devPath)
}

func (m *Monitor) Reclaim(devPath string) string {
	idx := m.findPort(devPath)
	if idx < 0 {
		return fmt.Sprintf("ERROR port not found: %s\n", devPath)
	}
	mp := m.ports[idx]

	if !mp.yielded {
		return fmt.Sprintf("OK already monitoring %s\n", devPath)
	}

	ser, err := m.openSerial(devPath)
	if err != nil {
		log.Warn("reclaim reopen failed", "dev", devPath, "error", err)
		return fmt.Sprintf("ERROR cannot reopen %s\n", devPath)
	}

	// the slot index is unchanged; only the fd is new
	if err := m.poller.add(ser.Fd(), tag(kindSerial, idx)); err != nil {
		ser.Close()
		return fmt.Sprintf("ERROR epoll add failed for %s\n", devPath)
	}
	mp.ser = ser

	if m.cfg.Proxy && ser.MasterFd() >= 0 {
		if err := m.poller.add(ser.MasterFd(), tag(kindPtyMaster, idx)); err != nil {
			log.Warn("cannot register pty master", "dev", devPath, "error", err)
		}
		link := filepath.Join(m.baseDir, "pty", mp.identity.Label)
		os.Remove(link)
		if err := os.Symlink(ser.SlavePath, link); err != nil {
			log.Warn("cannot link pty", "pts", ser.SlavePath, "error", err)
		}
	}

	mp.yielded = false
	mp.log.Marker("PORT RECLAIMED (monitoring resumed)")
	log.Info("reclaimed", "dev", devPath, "label", mp.identity.Label)
	m.writeStatus()

	return fmt.Sprintf("OK reclaimed %s\n", devPath)
}

func (m *Monitor) Quit() string {
	m.running = false
	return "OK shutting down\n"
}
