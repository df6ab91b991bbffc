package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/projectqai/uartmon/identify"
	"github.com/projectqai/uartmon/sessionlog"
)

func TestTagRoundTrip(t *testing.T) {
	tests := []struct {
		kind  sourceKind
		index int
	}{
		{kindSignal, 0},
		{kindHotplug, 0},
		{kindControl, 0},
		{kindSerial, 0},
		{kindSerial, 17},
		{kindSerial, maxPorts - 1},
		{kindPtyMaster, 5},
	}

	for _, tt := range tests {
		tg := tag(tt.kind, tt.index)
		if tagKind(tg) != tt.kind {
			t.Errorf("tag(%d,%d): kind %d", tt.kind, tt.index, tagKind(tg))
		}
		if tagIndex(tg) != tt.index {
			t.Errorf("tag(%d,%d): index %d", tt.kind, tt.index, tagIndex(tg))
		}

		ev := event(tg)
		if got := eventTag(&ev); got != tg {
			t.Errorf("event round-trip: %#x -> %#x", tg, got)
		}
	}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name     string
		devPath  string
		filter   string
		expected bool
	}{
		{"empty filter matches all", "/dev/ttyUSB0", "", true},
		{"full path", "/dev/ttyUSB0", "/dev/ttyUSB0", true},
		{"base name", "/dev/ttyUSB0", "ttyUSB0", true},
		{"comma list", "/dev/ttyUSB2", "ttyUSB0,ttyUSB2", true},
		{"spaces after comma", "/dev/ttyUSB2", "ttyUSB0, ttyUSB2", true},
		{"no match", "/dev/ttyUSB1", "ttyUSB0,ttyUSB2", false},
		{"prefix is not a match", "/dev/ttyUSB10", "ttyUSB1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.devPath, tt.filter); got != tt.expected {
				t.Errorf("matchesFilter(%q, %q) = %v, want %v",
					tt.devPath, tt.filter, got, tt.expected)
			}
		})
	}
}

func TestStatusJSON(t *testing.T) {
	session := t.TempDir()
	w, err := sessionlog.Open(session, "POLARFIRE_SOC_UART0", "")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Write([]byte("boot banner\n"))

	cp210x := identify.LookupKnownDevice(0x10c4, 0xea71)
	id := &identify.Port{
		DevPath: "/dev/ttyUSB0", TTYName: "ttyUSB0",
		VID: 0x10c4, PID: 0xea71, Known: cp210x, Function: "UART0",
	}
	id.Relabel()

	m := &Monitor{
		sessionPath: filepath.Join("/tmp/uart-monitor", "session-20260806-120000"),
		ports: []*mport{
			{identity: id, log: w},
			{identity: id, log: w, yielded: true},
		},
	}

	b, err := m.statusJSON()
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Pid       int    `json:"pid"`
		Session   string `json:"session"`
		PortCount int    `json:"port_count"`
		Ports     []struct {
			Device string `json:"device"`
			Board  string `json:"board"`
			VID    string `json:"vid"`
			Status string `json:"status"`
		} `json:"ports"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}

	if doc.Pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", doc.Pid, os.Getpid())
	}
	if doc.Session != "session-20260806-120000" {
		t.Errorf("session = %q", doc.Session)
	}
	if doc.PortCount != 2 {
		t.Errorf("port_count = %d", doc.PortCount)
	}
	if doc.Ports[0].Board != "PolarFire SoC" {
		t.Errorf("board = %q", doc.Ports[0].Board)
	}
	if doc.Ports[0].VID != "10c4" {
		t.Errorf("vid = %q", doc.Ports[0].VID)
	}
	if doc.Ports[0].Status != "monitoring" || doc.Ports[1].Status != "yielded" {
		t.Errorf("statuses = %q, %q", doc.Ports[0].Status, doc.Ports[1].Status)
	}

	s := string(b)
	if !strings.HasSuffix(s, "\n") {
		t.Error("document not newline-terminated")
	}
	if strings.Index(s, `"pid"`) > strings.Index(s, `"session"`) {
		t.Error("pid should precede session")
	}
	if strings.Index(s, `"port_count"`) > strings.Index(s, `"ports"`) {
		t.Error("port_count should precede ports")
	}
}

func TestAcquirePidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uart-monitor.pid")

	if err := acquirePidfile(path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Errorf("pid file not newline-terminated: %q", b)
	}

	// our own pid is alive, so a second acquire must refuse
	err = acquirePidfile(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	removePidfile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file not removed")
	}
}

func TestAcquirePidfileStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uart-monitor.pid")

	// garbage content counts as stale
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := acquirePidfile(path); err != nil {
		t.Errorf("garbage pid file should be replaced: %v", err)
	}

	// an impossible pid counts as stale too
	if err := os.WriteFile(path, []byte("999999999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := acquirePidfile(path); err != nil {
		t.Errorf("dead pid file should be replaced: %v", err)
	}
}
