package identify

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"golang.org/x/sys/unix"
)

func portAccess(devPath string) string {
	var s string
	if unix.Access(devPath, unix.R_OK) == nil {
		s += "R"
	}
	if unix.Access(devPath, unix.W_OK) == nil {
		s += "W"
	}
	if s == "" {
		s = "---"
	}
	return s
}

// PrintReport writes the grouped port inventory to stdout.
func PrintReport(groups []*Group, verbose bool) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	rule := strings.Repeat("=", 100)

	fmt.Println()
	fmt.Println(rule)
	_, _ = bold.Println("USB Serial Port Inventory - Grouped by Device")
	fmt.Println(rule)

	if len(groups) == 0 {
		fmt.Println("No USB serial ports found!")
		return
	}

	for i, g := range groups {
		first := g.Ports[0]

		fmt.Println()
		fmt.Println(rule)
		_, _ = bold.Printf("Device #%d: %s - %s\n", i+1, first.Manufacturer, first.Product)
		fmt.Println(rule)

		deviceType := "Unknown"
		expected := len(g.Ports)
		if first.Known != nil {
			deviceType = first.Known.Name
			expected = first.Known.ExpectedPorts
		}

		boards := "Unknown"
		if first.BoardOverride != "" {
			boards = first.BoardOverride
		} else if first.Known != nil {
			boards = strings.Join(first.Known.Boards, ", ")
		}

		fmt.Printf("  VID:PID       : %04x:%04x\n", first.VID, first.PID)
		fmt.Printf("  Device Type   : %s\n", deviceType)
		fmt.Printf("  Possible Board: %s\n", boards)
		if first.Serial != "" {
			fmt.Printf("  Serial Number : %s\n", first.Serial)
		}
		fmt.Printf("  USB Path      : %s\n", first.USBPath)
		fmt.Printf("  Port Count    : %d/%d\n", len(g.Ports), expected)
		fmt.Println()

		tbl := table.New("Port", "Iface", "Function", "Access")
		tbl.WithHeaderFormatter(cyan.SprintfFunc())
		tbl.WithWriter(os.Stdout)
		for _, p := range g.Ports {
			tbl.AddRow(p.DevPath, p.InterfaceNum, p.Function, portAccess(p.DevPath))
		}
		tbl.Print()

		if verbose {
			fmt.Println()
			fmt.Println("  Labels:")
			for _, p := range g.Ports {
				fmt.Printf("    %s -> %s\n", p.DevPath, p.Label)
			}
		}
	}
	fmt.Println()
}
