// Package monitor is the daemon's event core: a single epoll loop that
// owns the port table and services signals, hot-plug events, control
// clients and serial traffic. No other goroutine touches port state;
// the signal forwarder and the optional metrics listener only feed it.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/projectqai/uartmon/control"
	"github.com/projectqai/uartmon/hotplug"
	"github.com/projectqai/uartmon/identify"
	"github.com/projectqai/uartmon/metrics"
	"github.com/projectqai/uartmon/serport"
	"github.com/projectqai/uartmon/sessionlog"
)

const (
	maxPorts       = 64
	readBufSize    = 4096
	maxEpollEvents = maxPorts + 16
	epollTimeoutMs = 500

	staleLineAfter = 200 * time.Millisecond
	settleDelay    = 200 * time.Millisecond
)

var (
	ErrPortFull       = errors.New("port table full")
	ErrDuplicate      = errors.New("already monitoring")
	ErrFilterExcluded = errors.New("excluded by filter")
	ErrPortNotFound   = errors.New("port not found")
)

var log = slog.With("module", "monitor")

type mport struct {
	identity  *identify.Port
	ser       *serport.Port
	log       *sessionlog.Writer
	yielded   bool
	bytesRead int64
}

// Config carries the monitor command's effective settings.
type Config struct {
	BaseDir   string
	Baud      int
	Only      string
	Retention int
	Proxy     bool
	Systemd   bool
	Metrics   string
}

// Monitor holds the daemon state. All mutation happens on the loop
// goroutine.
type Monitor struct {
	cfg         Config
	baseDir     string
	sessionPath string

	running bool

	poller *poller
	sigR   int
	sigW   int
	hp     *hotplug.Source
	ctl    *control.Listener

	ports []*mport
}

// Run executes the full daemon lifecycle and blocks until shutdown.
func Run(cfg Config) error {
	m := &Monitor{cfg: cfg, baseDir: cfg.BaseDir, running: true, sigR: -1, sigW: -1}

	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", m.baseDir, err)
	}

	pidPath := filepath.Join(m.baseDir, "uart-monitor.pid")
	if err := acquirePidfile(pidPath); err != nil {
		return err
	}

	session, err := sessionlog.CreateSession(m.baseDir)
	if err != nil {
		removePidfile(pidPath)
		return err
	}
	m.sessionPath = session
	if err := sessionlog.Prune(m.baseDir, m.cfg.Retention); err != nil {
		log.Warn("session prune failed", "error", err)
	}

	log.Info("starting", "session", session, "baud", m.cfg.Baud)

	if m.cfg.Metrics != "" {
		if err := metrics.Serve(m.cfg.Metrics); err != nil {
			log.Warn("metrics disabled", "error", err)
		}
	}

	if err := m.setup(); err != nil {
		removePidfile(pidPath)
		return err
	}

	// initial scan
	ports, err := identify.Scan()
	if err != nil {
		log.Warn("initial scan failed", "error", err)
	}
	m.applyOverrides(ports)
	log.Info("initial scan", "found", len(ports))
	for _, p := range ports {
		if err := m.addPort(p); err != nil && !skippable(err) {
			log.Warn("cannot monitor port", "dev", p.DevPath, "error", err)
		}
	}
	m.writeStatus()

	if len(m.ports) == 0 {
		log.Info("no matching serial ports, waiting for hot-plug")
	}

	if m.cfg.Systemd {
		sdNotify("READY=1")
	}

	m.loop()

	// cleanup
	log.Info("shutting down")
	for i := len(m.ports) - 1; i >= 0; i-- {
		mp := m.ports[i]
		mp.log.Marker("MONITOR STOPPED")
		mp.log.Close()
		m.closeSerial(mp)
	}
	m.ports = nil

	if m.hp != nil {
		m.hp.Close()
	}
	if m.ctl != nil {
		m.ctl.Close()
	}
	if m.sigR >= 0 {
		unix.Close(m.sigR)
		unix.Close(m.sigW)
	}
	m.poller.close()

	removePidfile(pidPath)
	os.Remove(filepath.Join(m.baseDir, "status.json"))
	if m.cfg.Proxy {
		os.RemoveAll(filepath.Join(m.baseDir, "pty"))
	}

	if m.cfg.Systemd {
		sdNotify("STOPPING=1")
	}
	log.Info("stopped")
	return nil
}

func skippable(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrFilterExcluded)
}

// setup creates the poller and registers the auxiliary sources: signal
// pipe, hot-plug, control listener.
func (m *Monitor) setup() error {
	var err error
	m.poller, err = newPoller()
	if err != nil {
		return fmt.Errorf("epoll: %w", err)
	}

	if err := m.setupSignals(); err != nil {
		m.poller.close()
		return err
	}

	m.hp, err = hotplug.New()
	if err != nil {
		log.Warn("hot-plug detection unavailable", "error", err)
	} else if err := m.poller.add(m.hp.Fd(), tag(kindHotplug, 0)); err != nil {
		m.hp.Close()
		m.hp = nil
		log.Warn("cannot register hot-plug source", "error", err)
	}

	sockPath := filepath.Join(m.baseDir, "uart-monitor.sock")
	m.ctl, err = control.Listen(sockPath)
	if err != nil {
		log.Warn("control socket unavailable", "error", err)
	} else if err := m.poller.add(m.ctl.Fd(), tag(kindControl, 0)); err != nil {
		m.ctl.Close()
		m.ctl = nil
		log.Warn("cannot register control socket", "error", err)
	}

	if m.cfg.Proxy {
		if err := os.MkdirAll(filepath.Join(m.baseDir, "pty"), 0755); err != nil {
			return fmt.Errorf("create pty dir: %w", err)
		}
	}
	return nil
}

const (
	sigCodeTerm byte = 1
	sigCodeInt  byte = 2
	sigCodeHup  byte = 3
)

// setupSignals bridges the Go signal handler onto the epoll loop with a
// non-blocking self-pipe carrying one code byte per signal.
func (m *Monitor) setupSignals() error {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("signal pipe: %w", err)
	}
	m.sigR, m.sigW = p[0], p[1]

	if err := m.poller.add(m.sigR, tag(kindSignal, 0)); err != nil {
		unix.Close(m.sigR)
		unix.Close(m.sigW)
		m.sigR, m.sigW = -1, -1
		return fmt.Errorf("register signal pipe: %w", err)
	}

	ch := make(chan os.Signal, 8)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range ch {
			var code byte
			switch sig {
			case syscall.SIGTERM:
				code = sigCodeTerm
			case syscall.SIGINT:
				code = sigCodeInt
			case syscall.SIGHUP:
				code = sigCodeHup
			default:
				continue
			}
			unix.Write(m.sigW, []byte{code})
		}
	}()
	return nil
}

func (m *Monitor) loop() {
	events := make([]unix.EpollEvent, maxEpollEvents)
	buf := make([]byte, readBufSize)

	for m.running {
		n, err := m.poller.wait(events, epollTimeoutMs)
		if err != nil {
			log.Error("epoll wait", "error", err)
			break
		}

		for i := 0; i < n; i++ {
			t := eventTag(&events[i])
			switch tagKind(t) {
			case kindSignal:
				m.handleSignal()

			case kindHotplug:
				m.handleHotplug()

			case kindControl:
				if m.ctl != nil {
					if err := m.ctl.HandleOne(m); err != nil {
						log.Warn("control client", "error", err)
					}
				}

			case kindSerial:
				if m.handleSerial(tagIndex(t), buf) {
					// the table compacted under us; indices in the
					// rest of this batch are stale
					i = n
				}

			case kindPtyMaster:
				m.handlePtyMaster(tagIndex(t), buf)
			}
		}

		m.flushStale()
		m.updateMetrics()
	}
}

func (m *Monitor) handleSignal() {
	var b [1]byte
	n, err := unix.Read(m.sigR, b[:])
	if n != 1 || err != nil {
		return
	}

	switch b[0] {
	case sigCodeTerm, sigCodeInt:
		log.Info("received shutdown signal")
		m.running = false

	case sigCodeHup:
		log.Info("received SIGHUP, rescanning ports")
		ports, err := identify.Scan()
		if err != nil {
			log.Warn("rescan failed", "error", err)
			return
		}
		m.applyOverrides(ports)
		for _, p := range ports {
			if err := m.addPort(p); err != nil && !skippable(err) {
				log.Warn("cannot monitor port", "dev", p.DevPath, "error", err)
			}
		}
		m.writeStatus()
	}
}

func (m *Monitor) handleHotplug() {
	ev, err := m.hp.Read()
	if err != nil {
		log.Warn("hot-plug read", "error", err)
		return
	}
	if ev == nil {
		return
	}
	metrics.CountHotplugEvent()

	switch ev.Action {
	case hotplug.Add:
		log.Info("hot-plug add", "dev", ev.DevPath)
		// let the kernel finish populating sysfs
		time.Sleep(settleDelay)

		p, err := identify.Identify(ev.DevPath)
		if err != nil {
			log.Warn("cannot identify", "dev", ev.DevPath, "error", err)
			return
		}
		m.applyOverrides([]*identify.Port{p})
		if err := m.addPort(p); err != nil && !skippable(err) {
			log.Warn("cannot monitor port", "dev", p.DevPath, "error", err)
		}
		m.writeStatus()

	case hotplug.Remove:
		log.Info("hot-plug remove", "dev", ev.DevPath)
		if idx := m.findPort(ev.DevPath); idx >= 0 {
			m.removePort(idx)
			m.writeStatus()
		}
	}
}

// handleSerial reads one chunk from the indexed port. Returns true when
// the port was removed and the table compacted.
func (m *Monitor) handleSerial(idx int, buf []byte) bool {
	if idx < 0 || idx >= len(m.ports) {
		return false
	}
	mp := m.ports[idx]

	n, err := mp.ser.Read(buf)
	if n > 0 {
		mp.log.Write(buf[:n])
		mp.bytesRead += int64(n)
		metrics.AddBytesLogged(n)
		mp.ser.EchoToMaster(buf[:n])
		return false
	}
	if err == unix.EAGAIN {
		return false
	}

	if err != nil {
		log.Warn("serial read failed", "dev", mp.identity.DevPath, "error", err)
	} else {
		log.Warn("serial EOF", "dev", mp.identity.DevPath)
	}
	m.removePort(idx)
	m.writeStatus()
	return true
}

// handlePtyMaster forwards proxy client bytes to the real serial fd.
func (m *Monitor) handlePtyMaster(idx int, buf []byte) {
	if idx < 0 || idx >= len(m.ports) {
		return
	}
	mp := m.ports[idx]
	if mp.yielded || mp.ser.MasterFd() < 0 {
		return
	}

	n, err := mp.ser.ReadMaster(buf)
	if n <= 0 || err != nil {
		// EIO means no client holds the slave open; harmless
		return
	}
	if _, err := mp.ser.WriteReal(buf[:n]); err != nil && err != unix.EAGAIN {
		log.Warn("proxy write failed", "dev", mp.identity.DevPath, "error", err)
	}
}

func (m *Monitor) flushStale() {
	for _, mp := range m.ports {
		if mp.log.Stale(staleLineAfter) {
			mp.log.Flush()
		}
	}
}

func (m *Monitor) updateMetrics() {
	yielded := 0
	for _, mp := range m.ports {
		if mp.yielded {
			yielded++
		}
	}
	metrics.SetPortCounts(len(m.ports), yielded)
}

func (m *Monitor) applyOverrides(ports []*identify.Port) {
	path, err := identify.BoardsPath()
	if err != nil {
		return
	}
	ids, err := identify.LoadBoards(path)
	if err != nil {
		log.Warn("cannot read board overrides", "path", path, "error", err)
		return
	}
	if len(ids) > 0 {
		identify.ApplyBoards(ports, ids)
	}
}

func (m *Monitor) findPort(devPath string) int {
	for i, mp := range m.ports {
		if mp.identity.DevPath == devPath {
			return i
		}
	}
	return -1
}

func matchesFilter(devPath, filter string) bool {
	if filter == "" {
		return true
	}
	for _, tok := range strings.Split(filter, ",") {
		tok = strings.TrimLeft(tok, " ")
		if tok == devPath || tok == filepath.Base(devPath) {
			return true
		}
	}
	return false
}

func (m *Monitor) openSerial(devPath string) (*serport.Port, error) {
	if m.cfg.Proxy {
		return serport.OpenProxy(devPath, m.cfg.Baud)
	}
	return serport.OpenReadOnly(devPath, m.cfg.Baud)
}

func (m *Monitor) closeSerial(mp *mport) {
	if m.cfg.Proxy && mp.ser.SlavePath != "" {
		os.Remove(filepath.Join(m.baseDir, "pty", mp.identity.Label))
	}
	mp.ser.Close()
}

// addPort opens, logs and registers one identified port at the next
// slot. Duplicate and filtered devices report sentinel errors the
// callers treat as non-events.
func (m *Monitor) addPort(id *identify.Port) error {
	if len(m.ports) >= maxPorts {
		return ErrPortFull
	}
	if !matchesFilter(id.DevPath, m.cfg.Only) {
		return ErrFilterExcluded
	}
	if m.findPort(id.DevPath) >= 0 {
		return ErrDuplicate
	}

	ser, err := m.openSerial(id.DevPath)
	if err != nil {
		return err
	}

	board := "Unknown"
	if id.BoardOverride != "" {
		board = id.BoardOverride
	} else if id.Known != nil && len(id.Known.Boards) > 0 {
		board = id.Known.Boards[0]
	}
	function := id.Function
	if function == "" {
		function = "Unknown"
	}
	header := fmt.Sprintf("Device: %s (%s)\nBoard: %s | Interface %d | Function: %s\nBaud: %d 8N1\n",
		id.DevPath, id.Label, board, id.InterfaceNum, function, m.cfg.Baud)

	lw, err := sessionlog.Open(m.sessionPath, id.Label, header)
	if err != nil {
		ser.Close()
		return err
	}

	idx := len(m.ports)
	if err := m.poller.add(ser.Fd(), tag(kindSerial, idx)); err != nil {
		lw.Close()
		ser.Close()
		return fmt.Errorf("register %s: %w", id.DevPath, err)
	}

	mp := &mport{identity: id, ser: ser, log: lw}
	m.ports = append(m.ports, mp)

	if m.cfg.Proxy {
		link := filepath.Join(m.baseDir, "pty", id.Label)
		os.Remove(link)
		if err := os.Symlink(ser.SlavePath, link); err != nil {
			log.Warn("cannot link pty", "pts", ser.SlavePath, "error", err)
		}
		if err := m.poller.add(ser.MasterFd(), tag(kindPtyMaster, idx)); err != nil {
			log.Warn("cannot register pty master", "dev", id.DevPath, "error", err)
		}
	}

	log.Info("monitoring", "dev", id.DevPath, "label", id.Label, "log", lw.Path)
	return nil
}

// removePort drops the indexed port and compacts the table, rewriting
// the epoll tags of every shifted entry.
func (m *Monitor) removePort(idx int) {
	if idx < 0 || idx >= len(m.ports) {
		return
	}
	mp := m.ports[idx]

	if mp.ser.Fd() >= 0 {
		m.poller.del(mp.ser.Fd())
	}
	if mp.ser.MasterFd() >= 0 {
		m.poller.del(mp.ser.MasterFd())
	}

	mp.log.Marker("PORT DISCONNECTED")
	mp.log.Close()
	m.closeSerial(mp)

	log.Info("removed", "dev", mp.identity.DevPath, "label", mp.identity.Label)

	m.ports = append(m.ports[:idx], m.ports[idx+1:]...)
	for i := idx; i < len(m.ports); i++ {
		shifted := m.ports[i]
		if shifted.ser.Fd() >= 0 && !shifted.yielded {
			m.poller.mod(shifted.ser.Fd(), tag(kindSerial, i))
		}
		if shifted.ser.MasterFd() >= 0 {
			m.poller.mod(shifted.ser.MasterFd(), tag(kindPtyMaster, i))
		}
	}
}
