package serport

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func TestBaudBits(t *testing.T) {
	tests := []struct {
		baud     int
		expected uint32
	}{
		{9600, unix.B9600},
		{115200, unix.B115200},
		{921600, unix.B921600},
		{4000000, unix.B4000000},
		{12345, unix.B115200},
		{0, unix.B115200},
	}

	for _, tt := range tests {
		if got := BaudBits(tt.baud); got != tt.expected {
			t.Errorf("BaudBits(%d) = %#x, want %#x", tt.baud, got, tt.expected)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := &Port{fd: -1, masterFd: -1}
	p.Close()
	p.Close()
}

// A PTY slave behaves enough like a USB tty to exercise the open path.
func TestOpenReadOnly(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer master.Close()
	slavePath := slave.Name()
	slave.Close()

	p, err := OpenReadOnly(slavePath, 115200)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Fd() < 0 {
		t.Error("expected valid fd")
	}
	if p.MasterFd() != -1 {
		t.Errorf("read-only port should have no master, got %d", p.MasterFd())
	}

	if _, err := master.WriteString("hello\n"); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			if got := string(buf[:n]); got != "hello\n" {
				t.Errorf("read %q, want %q", got, "hello\n")
			}
			break
		}
		if err != nil && err != unix.EAGAIN {
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for data")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Close()
	if p.Fd() != -1 {
		t.Errorf("fd not cleared on close: %d", p.Fd())
	}
}
