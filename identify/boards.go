package identify

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BoardID maps a USB serial number to a user-assigned board name.
type BoardID struct {
	Serial string
	Board  string
}

// BoardsPath returns the board config file, ~/.boards.
func BoardsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".boards"), nil
}

// LoadBoards parses a board config file. The file is shell-sourceable;
// board assignments live in comments:
//
//	# === ZynqMP ZCU102 ===
//	# USB: 1-6.2 | S/N: A50285BI
//	export ZYNQMP_ZCU102_UART0=/dev/ttyUSB0
//
// A heading names the board for the S/N lines that follow it. A missing
// file is not an error.
func LoadBoards(path string) ([]BoardID, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ids []BoardID
	current := ""

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimLeft(line, " \t")

		if rest, ok := strings.CutPrefix(trimmed, "# === "); ok {
			if end := strings.Index(rest, " ==="); end >= 0 {
				current = rest[:end]
			}
			continue
		}

		if current == "" || !strings.Contains(line, "# USB:") ||
			!strings.Contains(line, "S/N:") {
			continue
		}
		_, after, _ := strings.Cut(line, "S/N:")
		serial, _, _ := strings.Cut(strings.TrimLeft(after, " "), " ")
		serial = strings.TrimRight(serial, "\r\n")
		if serial != "" {
			ids = append(ids, BoardID{Serial: serial, Board: current})
		}
	}
	return ids, sc.Err()
}

// ApplyBoards sets the board override on every port whose USB serial
// number matches an entry, regenerating its label.
func ApplyBoards(ports []*Port, ids []BoardID) {
	for _, p := range ports {
		if p.Serial == "" {
			continue
		}
		for _, id := range ids {
			if p.Serial == id.Serial {
				p.BoardOverride = id.Board
				p.Relabel()
				break
			}
		}
	}
}

// SaveBoards writes the current inventory to a board config file in the
// format LoadBoards reads back. Headings come from the board override
// when one applies, else the catalog's first board guess, else the
// product string, so a saved file can be renamed by hand and reloaded.
func SaveBoards(path string, groups []*Group) error {
	var b strings.Builder
	b.WriteString("# USB serial board assignments. Rename the headings to match\n")
	b.WriteString("# your bench; the S/N lines tie a heading to a physical device.\n")

	for _, g := range groups {
		first := g.Ports[0]
		board := first.BoardOverride
		if board == "" && first.Known != nil && len(first.Known.Boards) > 0 {
			board = first.Known.Boards[0]
		}
		if board == "" {
			board = first.Product
		}

		fmt.Fprintf(&b, "\n# === %s ===\n", board)
		fmt.Fprintf(&b, "# USB: %s | S/N: %s\n", first.USBPath, first.Serial)
		for _, p := range g.Ports {
			fmt.Fprintf(&b, "export %s=%s\n", p.Label, p.DevPath)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
