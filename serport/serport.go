// Package serport opens serial ports as raw non-blocking file
// descriptors suitable for an epoll loop. The read-only open never
// writes to the port and does not take exclusive access.
package serport

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

var baudBits = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

// BaudBits maps a numeric baud rate to the termios speed constant.
// Unrecognized rates fall back to 115200.
func BaudBits(baud int) uint32 {
	if b, ok := baudBits[baud]; ok {
		return b
	}
	return unix.B115200
}

// Port is an open serial port. In proxy mode it additionally carries
// the master side of a PTY pair whose slave is handed to clients.
type Port struct {
	DevPath string
	Baud    int

	fd        int
	masterFd  int
	master    *os.File
	SlavePath string
}

func rawTermios(baud int) *unix.Termios {
	speed := BaudBits(baud)
	tio := &unix.Termios{}
	tio.Cflag = speed | unix.CS8 | unix.CREAD | unix.CLOCAL
	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0
	return tio
}

func configure(fd int, baud int) error {
	return unix.IoctlSetTermios(fd, unix.TCSETS, rawTermios(baud))
}

// OpenReadOnly opens a tty for monitoring: read-only, no controlling
// terminal, non-blocking, raw 8N1 at the requested baud.
func OpenReadOnly(devPath string, baud int) (*Port, error) {
	fd, err := unix.Open(devPath, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}
	if err := configure(fd, baud); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", devPath, err)
	}
	return &Port{DevPath: devPath, Baud: baud, fd: fd, masterFd: -1}, nil
}

// OpenProxy opens a tty read-write with advisory exclusive access and
// allocates a PTY pair for clients. The slave descriptor is closed
// immediately; only its path is kept. Exclusive-access failure is not
// fatal.
func OpenProxy(devPath string, baud int) (*Port, error) {
	fd, err := unix.Open(devPath, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}
	if err := configure(fd, baud); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", devPath, err)
	}
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		slog.Warn("cannot take exclusive access", "module", "serport",
			"dev", devPath, "error", err)
	}

	master, slave, err := pty.Open()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("allocate pty for %s: %w", devPath, err)
	}
	slavePath := slave.Name()
	if err := configure(int(slave.Fd()), baud); err != nil {
		slog.Warn("cannot configure pty slave", "module", "serport",
			"pts", slavePath, "error", err)
	}
	slave.Close()

	masterFd := int(master.Fd())
	if err := unix.SetNonblock(masterFd, true); err != nil {
		master.Close()
		unix.Close(fd)
		return nil, fmt.Errorf("set pty master non-blocking: %w", err)
	}

	return &Port{
		DevPath:   devPath,
		Baud:      baud,
		fd:        fd,
		masterFd:  masterFd,
		master:    master,
		SlavePath: slavePath,
	}, nil
}

// Fd returns the real tty descriptor, or -1 when closed.
func (p *Port) Fd() int { return p.fd }

// MasterFd returns the PTY master descriptor, or -1 outside proxy mode.
func (p *Port) MasterFd() int { return p.masterFd }

// Read reads from the real tty.
func (p *Port) Read(buf []byte) (int, error) {
	return unix.Read(p.fd, buf)
}

// EchoToMaster copies monitored bytes out to the PTY master so proxy
// clients see the port's traffic. Drops on EAGAIN; a slow client must
// not stall the monitor.
func (p *Port) EchoToMaster(buf []byte) {
	if p.masterFd < 0 {
		return
	}
	for len(buf) > 0 {
		n, err := unix.Write(p.masterFd, buf)
		if err != nil || n <= 0 {
			return
		}
		buf = buf[n:]
	}
}

// ReadMaster reads client bytes from the PTY master.
func (p *Port) ReadMaster(buf []byte) (int, error) {
	return unix.Read(p.masterFd, buf)
}

// WriteReal forwards client bytes to the real tty.
func (p *Port) WriteReal(buf []byte) (int, error) {
	return unix.Write(p.fd, buf)
}

// Close is idempotent. The PTY master goes first, then the real fd.
func (p *Port) Close() {
	if p.master != nil {
		p.master.Close()
		p.master = nil
	}
	p.masterFd = -1
	if p.fd >= 0 {
		unix.Close(p.fd)
		p.fd = -1
	}
	p.SlavePath = ""
}
