package identify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleBoards = `# USB serial board assignments
# === ZynqMP ZCU102 ===
# USB: 1-6.2 | S/N: A50285BI
export ZYNQMP_ZCU102_UART0=/dev/ttyUSB0

# === PolarFire SoC Icicle ===
# USB: 1-4 | S/N: PF123456
export POLARFIRE_SOC_ICICLE_UART0=/dev/ttyUSB4

# not a heading, just noise
# USB: 9-9 but no serial keyword here
`

func TestLoadBoards(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".boards")
	if err := os.WriteFile(path, []byte(sampleBoards), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := LoadBoards(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 overrides, got %d: %+v", len(ids), ids)
	}
	if ids[0].Serial != "A50285BI" || ids[0].Board != "ZynqMP ZCU102" {
		t.Errorf("unexpected first override: %+v", ids[0])
	}
	if ids[1].Serial != "PF123456" || ids[1].Board != "PolarFire SoC Icicle" {
		t.Errorf("unexpected second override: %+v", ids[1])
	}
}

func TestLoadBoardsMissingFile(t *testing.T) {
	ids, err := LoadBoards(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if ids != nil {
		t.Errorf("expected no overrides, got %+v", ids)
	}
}

func TestApplyBoards(t *testing.T) {
	cp210x := LookupKnownDevice(0x10c4, 0xea71)
	ports := []*Port{
		{TTYName: "ttyUSB0", VID: 0x10c4, PID: 0xea71, Serial: "A50285BI", Known: cp210x},
		{TTYName: "ttyUSB1", VID: 0x10c4, PID: 0xea71, Serial: "OTHER", Known: cp210x, InterfaceNum: 1},
		{TTYName: "ttyUSB2"},
	}
	for _, p := range ports {
		p.Relabel()
	}

	ApplyBoards(ports, []BoardID{{Serial: "A50285BI", Board: "ZynqMP ZCU102"}})

	if ports[0].Label != "ZYNQMP_ZCU102_UART0" {
		t.Errorf("expected override label, got %q", ports[0].Label)
	}
	if ports[1].Label != "POLARFIRE_SOC_UART1" {
		t.Errorf("expected catalog label untouched, got %q", ports[1].Label)
	}
	if ports[2].Label != "ttyUSB2" {
		t.Errorf("expected tty fallback untouched, got %q", ports[2].Label)
	}
}

func TestSaveBoardsRoundTrip(t *testing.T) {
	cp210x := LookupKnownDevice(0x10c4, 0xea71)
	ports := []*Port{
		{DevPath: "/dev/ttyUSB0", TTYName: "ttyUSB0", VID: 0x10c4, PID: 0xea71,
			Serial: "A50285BI", USBPath: "1-6.2", Known: cp210x,
			BoardOverride: "ZynqMP ZCU102"},
		{DevPath: "/dev/ttyUSB1", TTYName: "ttyUSB1", VID: 0x10c4, PID: 0xea71,
			Serial: "A50285BI", USBPath: "1-6.2", Known: cp210x,
			BoardOverride: "ZynqMP ZCU102", InterfaceNum: 1},
	}
	for _, p := range ports {
		p.Relabel()
	}

	path := filepath.Join(t.TempDir(), ".boards")
	if err := SaveBoards(path, GroupPorts(ports)); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "# === ZynqMP ZCU102 ===") {
		t.Errorf("missing board heading:\n%s", b)
	}
	if !strings.Contains(string(b), "export ZYNQMP_ZCU102_UART1=/dev/ttyUSB1") {
		t.Errorf("missing export line:\n%s", b)
	}

	ids, err := LoadBoards(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0].Serial != "A50285BI" || ids[0].Board != "ZynqMP ZCU102" {
		t.Errorf("round-trip mismatch: %+v", ids)
	}
}
