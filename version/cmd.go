package version

import (
	"fmt"

	"github.com/projectqai/uartmon/cmd"
	"github.com/spf13/cobra"
)

var Version = "dev"

var CMD = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	cmd.CMD.AddCommand(CMD)
}
