// Package hotplug detects USB serial devices appearing and disappearing.
// It prefers the kernel uevent netlink multicast group and falls back to
// an inotify watch on /dev when netlink is unavailable (containers,
// restricted namespaces). Either way the caller gets one readable file
// descriptor to park in its epoll set.
package hotplug

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Action int

const (
	Add Action = iota + 1
	Remove
)

// Event is one add/remove of a monitored tty.
type Event struct {
	Action  Action
	DevName string
	DevPath string
}

type backend int

const (
	backendNetlink backend = iota
	backendInotify
)

// Source owns the hot-plug file descriptor.
type Source struct {
	fd      int
	backend backend
}

// Monitored reports whether a tty name is one we watch for.
func Monitored(devname string) bool {
	return strings.HasPrefix(devname, "ttyUSB") ||
		strings.HasPrefix(devname, "ttyACM") ||
		strings.HasPrefix(devname, "ttyUART")
}

func tryNetlink() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    uint32(unix.Getpid()),
		Groups: 1,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func tryInotify() (int, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return -1, err
	}
	if _, err := unix.InotifyAddWatch(fd, "/dev", unix.IN_CREATE|unix.IN_DELETE); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// New opens the hot-plug source, netlink first, inotify second.
func New() (*Source, error) {
	if fd, err := tryNetlink(); err == nil {
		return &Source{fd: fd, backend: backendNetlink}, nil
	} else {
		slog.Warn("netlink uevent unavailable, falling back to inotify",
			"module", "hotplug", "error", err)
	}

	fd, err := tryInotify()
	if err != nil {
		return nil, fmt.Errorf("inotify on /dev: %w", err)
	}
	return &Source{fd: fd, backend: backendInotify}, nil
}

// Fd returns the descriptor to register for readability.
func (s *Source) Fd() int { return s.fd }

// Read drains one readiness wakeup. It returns nil when the traffic did
// not concern a monitored tty; the caller just re-arms.
func (s *Source) Read() (*Event, error) {
	if s.backend == backendNetlink {
		return s.readNetlink()
	}
	return s.readInotify()
}

func (s *Source) readNetlink() (*Event, error) {
	buf := make([]byte, 8192)
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, err
	}
	return parseUevent(buf[:n]), nil
}

// parseUevent walks the NUL-separated KEY=VALUE strings of one uevent
// datagram.
func parseUevent(buf []byte) *Event {
	var action, subsystem, devname string

	for _, field := range bytes.Split(buf, []byte{0}) {
		s := string(field)
		switch {
		case strings.HasPrefix(s, "ACTION="):
			action = s[len("ACTION="):]
		case strings.HasPrefix(s, "SUBSYSTEM="):
			subsystem = s[len("SUBSYSTEM="):]
		case strings.HasPrefix(s, "DEVNAME="):
			devname = s[len("DEVNAME="):]
		}
	}

	if subsystem != "tty" || !Monitored(devname) {
		return nil
	}

	ev := &Event{DevName: devname, DevPath: "/dev/" + devname}
	switch action {
	case "add":
		ev.Action = Add
	case "remove":
		ev.Action = Remove
	default:
		return nil
	}
	return ev
}

func (s *Source) readInotify() (*Event, error) {
	buf := make([]byte, 4096)
	n, err := unix.Read(s.fd, buf)
	if n <= 0 {
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	off := 0
	for off+unix.SizeofInotifyEvent <= n {
		ie := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		nameEnd := off + unix.SizeofInotifyEvent + int(ie.Len)
		if ie.Len > 0 {
			name := string(bytes.TrimRight(
				buf[off+unix.SizeofInotifyEvent:nameEnd], "\x00"))
			if Monitored(name) {
				ev := &Event{DevName: name, DevPath: "/dev/" + name}
				if ie.Mask&unix.IN_CREATE != 0 {
					ev.Action = Add
					return ev, nil
				}
				if ie.Mask&unix.IN_DELETE != 0 {
					ev.Action = Remove
					return ev, nil
				}
			}
		}
		off = nameEnd
	}
	return nil, nil
}

// Close releases the descriptor.
func (s *Source) Close() {
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
}
