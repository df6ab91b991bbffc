package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/projectqai/uartmon/cmd"
)

var tailCMD = &cobra.Command{
	Use:   "tail <device|label>",
	Short: "Follow the latest log for a port",
	Example: "  uartmon tail ttyUSB0\n" +
		"  uartmon tail ZYNQMP_ZCU102_UART0",
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	cmd.CMD.AddCommand(tailCMD)
}

func latestDir() string {
	return filepath.Join(cmd.BaseDir(), "latest")
}

// resolveLog maps a device path, tty name or label onto a log file in
// the latest session.
func resolveLog(name string) (string, error) {
	name = strings.TrimPrefix(name, "/dev/")

	path := filepath.Join(latestDir(), name+".log")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// logs are named by label; a device path or tty name is matched
	// against the "Device: /dev/<tty> (" line of each log's banner
	entries, _ := os.ReadDir(latestDir())
	var available []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		available = append(available, e.Name())
		logPath := filepath.Join(latestDir(), e.Name())
		if f, err := os.Open(logPath); err == nil {
			head := make([]byte, 512)
			n, _ := f.Read(head)
			f.Close()
			if strings.Contains(string(head[:n]), "Device: /dev/"+name+" (") {
				return logPath, nil
			}
		}
	}
	if len(available) == 0 {
		return "", fmt.Errorf("log file not found: %s (no logs in %s)", path, latestDir())
	}
	return "", fmt.Errorf("log file not found: %s\navailable logs: %s",
		path, strings.Join(available, ", "))
}

func runTail(c *cobra.Command, args []string) error {
	path, err := resolveLog(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Tailing %s (Ctrl-C to stop)...\n\n", path)

	// dump what's already there, then follow on write events
	if _, err := io.Copy(os.Stdout, f); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) {
				if _, err := io.Copy(os.Stdout, f); err != nil {
					return err
				}
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
