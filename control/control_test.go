package control

import (
	"path/filepath"
	"testing"
	"time"
)

type fakeHandler struct {
	quits int
}

func (f *fakeHandler) Status() string { return "{\"pid\": 1234}\n" }
func (f *fakeHandler) Yield(devPath string) string {
	return "OK yielded " + devPath + "\n"
}
func (f *fakeHandler) Reclaim(devPath string) string {
	return "OK reclaimed " + devPath + "\n"
}
func (f *fakeHandler) Quit() string {
	f.quits++
	return "OK shutting down\n"
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		line     string
		expected string
	}{
		{"STATUS", "{\"pid\": 1234}\n"},
		{"YIELD /dev/ttyUSB0", "OK yielded /dev/ttyUSB0\n"},
		{"RECLAIM /dev/ttyUSB0", "OK reclaimed /dev/ttyUSB0\n"},
		{"QUIT", "OK shutting down\n"},
		{"FROB", "ERROR unknown command: FROB\n"},
		{"YIELD", "ERROR unknown command: YIELD\n"},
		{"", "ERROR unknown command: \n"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := Dispatch(tt.line, &fakeHandler{})
			if got != tt.expected {
				t.Errorf("Dispatch(%q) = %q, want %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestOK(t *testing.T) {
	tests := []struct {
		resp     string
		expected bool
	}{
		{"OK yielded /dev/ttyUSB0\n", true},
		{"OK\n", true},
		{"ERROR port not found\n", false},
		{"{\"pid\": 1}\n", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := OK(tt.resp); got != tt.expected {
			t.Errorf("OK(%q) = %v, want %v", tt.resp, got, tt.expected)
		}
	}
}

func TestListenSendRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	l, err := Listen(sock)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	h := &fakeHandler{}
	done := make(chan error, 1)
	go func() {
		// the listener is non-blocking; poll until the client shows up
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if h.quits > 0 {
				done <- nil
				return
			}
			if err := l.HandleOne(h); err != nil {
				done <- err
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		done <- nil
	}()

	resp, err := Send(sock, "QUIT")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "OK shutting down\n" {
		t.Errorf("unexpected response %q", resp)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.quits != 1 {
		t.Errorf("expected 1 quit, got %d", h.quits)
	}
}

func TestSendNoDaemon(t *testing.T) {
	if _, err := Send(filepath.Join(t.TempDir(), "nope.sock"), "STATUS"); err == nil {
		t.Error("expected connect error")
	}
}
