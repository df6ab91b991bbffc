// Package control is the daemon's administrative plane: a unix-domain
// stream socket speaking newline-terminated text commands. Clients send
// one request, read one response and disconnect.
package control

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// maxMsg bounds a single request or response.
const maxMsg = 8192

// Handler executes parsed commands against the daemon state. Every
// method returns the full newline-terminated response text.
type Handler interface {
	Status() string
	Yield(devPath string) string
	Reclaim(devPath string) string
	Quit() string
}

// Listener owns the control socket as a raw fd so it can sit in the
// daemon's epoll set.
type Listener struct {
	fd   int
	path string
}

// Listen binds the control socket, removing any stale path first.
func Listen(sockPath string) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX,
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("control socket: %w", err)
	}

	unix.Unlink(sockPath)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: sockPath}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", sockPath, err)
	}
	if err := unix.Listen(fd, 5); err != nil {
		unix.Close(fd)
		unix.Unlink(sockPath)
		return nil, fmt.Errorf("listen %s: %w", sockPath, err)
	}
	return &Listener{fd: fd, path: sockPath}, nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// HandleOne accepts a single pending client, reads its request,
// dispatches it and replies. Returns without error when no client is
// actually pending.
func (l *Listener) HandleOne(h Handler) error {
	cfd, _, err := unix.Accept(l.fd)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
	defer unix.Close(cfd)

	buf := make([]byte, maxMsg)
	n, err := unix.Read(cfd, buf)
	if n <= 0 || err != nil {
		return nil
	}

	resp := Dispatch(strings.TrimRight(string(buf[:n]), "\r\n"), h)
	unix.Write(cfd, []byte(resp))
	return nil
}

// Dispatch parses one request line and runs it through the handler.
func Dispatch(line string, h Handler) string {
	switch {
	case line == "STATUS":
		return h.Status()
	case strings.HasPrefix(line, "YIELD "):
		return h.Yield(line[len("YIELD "):])
	case strings.HasPrefix(line, "RECLAIM "):
		return h.Reclaim(line[len("RECLAIM "):])
	case line == "QUIT":
		return h.Quit()
	default:
		return fmt.Sprintf("ERROR unknown command: %s\n", line)
	}
}

// Close shuts the listener and removes the socket path.
func (l *Listener) Close() {
	if l.fd >= 0 {
		unix.Close(l.fd)
		l.fd = -1
	}
	if l.path != "" {
		unix.Unlink(l.path)
	}
}

// Send connects to the daemon, issues one command and returns the raw
// response text. The error carries a hint when no daemon is listening.
func Send(sockPath, cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return "", fmt.Errorf(
			"cannot connect to daemon at %s (is uartmon running? start with: uartmon monitor -f): %w",
			sockPath, err)
	}
	defer conn.Close()

	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, maxMsg)
	n, err := conn.Read(buf)
	if n <= 0 {
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("empty response")
	}
	return string(buf[:n]), nil
}

// OK reports whether a response indicates success.
func OK(resp string) bool { return strings.HasPrefix(resp, "OK") }
