// Package cli holds the administrative subcommands that talk to a
// running daemon over the control socket, plus the log follower.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projectqai/uartmon/cmd"
	"github.com/projectqai/uartmon/control"
)

// sendCmd issues one control command, prints the response and maps the
// OK/ERROR prefix onto the exit code.
func sendCmd(command string) error {
	resp, err := control.Send(cmd.SocketPath(), command)
	if err != nil {
		return err
	}
	fmt.Print(resp)
	if len(resp) > 0 && resp[len(resp)-1] != '\n' {
		fmt.Println()
	}
	if !control.OK(resp) {
		os.Exit(1)
	}
	return nil
}

var statusCMD = &cobra.Command{
	Use:   "status",
	Short: "Query running daemon status",
	RunE: func(c *cobra.Command, args []string) error {
		resp, err := control.Send(cmd.SocketPath(), "STATUS")
		if err != nil {
			return err
		}
		fmt.Print(resp)
		return nil
	},
}

var yieldCMD = &cobra.Command{
	Use:     "yield <device>",
	Short:   "Release a port for flashing",
	Example: "  uartmon yield /dev/ttyUSB0",
	Args:    cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return sendCmd("YIELD " + args[0])
	},
}

var reclaimCMD = &cobra.Command{
	Use:     "reclaim <device>",
	Short:   "Re-acquire a yielded port",
	Example: "  uartmon reclaim /dev/ttyUSB0",
	Args:    cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return sendCmd("RECLAIM " + args[0])
	},
}

var quitCMD = &cobra.Command{
	Use:   "quit",
	Short: "Shut down the running daemon",
	RunE: func(c *cobra.Command, args []string) error {
		return sendCmd("QUIT")
	},
}

func init() {
	cmd.CMD.AddCommand(statusCMD)
	cmd.CMD.AddCommand(yieldCMD)
	cmd.CMD.AddCommand(reclaimCMD)
	cmd.CMD.AddCommand(quitCMD)
}
