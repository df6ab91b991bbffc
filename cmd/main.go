package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// DefaultBaseDir is where sessions, the control socket and the status
// snapshot live. UARTMON_DIR overrides it.
const DefaultBaseDir = "/tmp/uart-monitor"

const DefaultBaud = 115200

var CMD = &cobra.Command{
	Use:   "uartmon",
	Short: "background UART monitor for embedded development boards",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		godotenv.Load()
		return nil
	},
}

// BaseDir resolves the runtime base directory.
func BaseDir() string {
	if dir := os.Getenv("UARTMON_DIR"); dir != "" {
		return dir
	}
	return DefaultBaseDir
}

// SocketPath is the control socket the daemon listens on and the
// administrative clients dial.
func SocketPath() string {
	return BaseDir() + "/uart-monitor.sock"
}
