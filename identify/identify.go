// Package identify scans /dev for USB serial ports and resolves each one
// to its USB device through sysfs. It never opens or writes to a port.
package identify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SysfsRoot is the sysfs mount point. Tests point it at a fixture tree.
var SysfsRoot = "/sys"

// Port is one USB serial port together with everything sysfs told us
// about the device it belongs to.
type Port struct {
	DevPath       string
	TTYName       string
	VID           uint16
	PID           uint16
	InterfaceNum  int
	Serial        string
	Manufacturer  string
	Product       string
	USBPath       string
	Known         *KnownDevice
	Function      string
	BoardOverride string
	Label         string
}

// Group collects the ports that belong to one physical USB device,
// keyed by vid:pid:serial:usbpath.
type Group struct {
	Key   string
	Ports []*Port
}

// MonitoredName reports whether a tty name is one we monitor.
func MonitoredName(name string) bool {
	return strings.HasPrefix(name, "ttyUSB") ||
		strings.HasPrefix(name, "ttyACM") ||
		strings.HasPrefix(name, "ttyUART")
}

func readAttr(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func readHexAttr(path string) (uint16, bool) {
	s, ok := readAttr(path)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// extractUSBPath pulls the USB bus path (e.g. "1-6.2") out of a resolved
// sysfs device path by finding the /usbN/ component and taking the next one.
func extractUSBPath(sysfsPath string) string {
	rest := sysfsPath
	for {
		i := strings.Index(rest, "/usb")
		if i < 0 {
			return ""
		}
		rest = rest[i+4:]
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 0 || j >= len(rest) || rest[j] != '/' {
			continue
		}
		comp := rest[j+1:]
		end := strings.IndexAny(comp, "/:")
		if end < 0 {
			end = len(comp)
		}
		if end > 0 {
			return comp[:end]
		}
		return ""
	}
}

// Identify resolves one /dev path into a Port by walking up its sysfs
// device tree. For ttyUSB the resolved path sits below the interface
// directory (bInterfaceNumber) which sits below the USB device directory
// (idVendor); for ttyACM the resolved path is the interface directory
// itself. Returns an error for ttys with no sysfs device entry.
func Identify(devPath string) (*Port, error) {
	p := &Port{DevPath: devPath}
	p.TTYName = filepath.Base(devPath)

	link := filepath.Join(SysfsRoot, "class", "tty", p.TTYName, "device")
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return nil, fmt.Errorf("no sysfs device for %s: %w", p.TTYName, err)
	}

	dir := resolved
	foundIface := false
	for depth := 0; depth < 12; depth++ {
		if !foundIface {
			if s, ok := readAttr(filepath.Join(dir, "bInterfaceNumber")); ok {
				if n, err := strconv.ParseInt(s, 10, 32); err == nil {
					p.InterfaceNum = int(n)
				}
				foundIface = true
			}
		}

		if vid, ok := readHexAttr(filepath.Join(dir, "idVendor")); ok {
			p.VID = vid
			p.PID, _ = readHexAttr(filepath.Join(dir, "idProduct"))
			p.Serial, _ = readAttr(filepath.Join(dir, "serial"))
			p.Manufacturer, _ = readAttr(filepath.Join(dir, "manufacturer"))
			p.Product, _ = readAttr(filepath.Join(dir, "product"))
			p.USBPath = extractUSBPath(dir)
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir || parent == "/" {
			break
		}
		dir = parent
	}

	if p.Manufacturer == "" {
		p.Manufacturer = "Unknown"
	}
	if p.Product == "" {
		p.Product = "Unknown"
	}

	p.Known = LookupKnownDevice(p.VID, p.PID)
	if p.Known != nil {
		p.Function = LookupPortFunction(p.Known.Name, p.InterfaceNum)
	}
	if p.Function == "" {
		p.Function = "Main UART"
	}

	p.Relabel()
	return p, nil
}

// Relabel regenerates the port's label from the board override, the
// catalog entry or the tty name, in that order of preference.
func (p *Port) Relabel() {
	if p.BoardOverride != "" {
		p.Label = fmt.Sprintf("%s_UART%d", cleanBoardName(p.BoardOverride), p.InterfaceNum)
		return
	}
	if p.Known != nil && len(p.Known.Boards) > 0 {
		board := cleanBoardName(p.Known.Boards[0])
		if p.Known.ExpectedPorts > 1 {
			p.Label = fmt.Sprintf("%s_UART%d", board, p.InterfaceNum)
		} else {
			p.Label = board + "_UART"
		}
		return
	}
	p.Label = p.TTYName
}

func cleanBoardName(board string) string {
	if len(board) > 48 {
		board = board[:48]
	}
	return strings.ToUpper(strings.ReplaceAll(board, " ", "_"))
}

// Scan enumerates serial ports and identifies every monitored one.
// Ports without a sysfs device entry (virtual ttys) are skipped; a port
// whose sysfs tree has no USB device is kept with zero VID and PID.
func Scan() ([]*Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(names)

	var ports []*Port
	for _, dev := range names {
		if !MonitoredName(filepath.Base(dev)) {
			continue
		}
		p, err := Identify(dev)
		if err != nil {
			continue
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// GroupPorts buckets ports by physical device and sorts each bucket by
// interface number. Group order follows first appearance in ports.
func GroupPorts(ports []*Port) []*Group {
	var groups []*Group
	index := make(map[string]*Group)

	for _, p := range ports {
		key := fmt.Sprintf("%04x:%04x:%s:%s", p.VID, p.PID, p.Serial, p.USBPath)
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Ports = append(g.Ports, p)
	}

	for _, g := range groups {
		sort.SliceStable(g.Ports, func(i, j int) bool {
			return g.Ports[i].InterfaceNum < g.Ports[j].InterfaceNum
		})
	}
	return groups
}
