package identify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectqai/uartmon/cmd"
)

var (
	flagVerbose bool
	flagSave    bool
)

var CMD = &cobra.Command{
	Use:   "identify",
	Short: "Scan and identify connected USB serial ports",
	RunE:  runIdentify,
}

func init() {
	CMD.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print generated port labels")
	CMD.Flags().BoolVar(&flagSave, "save", false, "write the inventory to ~/.boards")
	cmd.CMD.AddCommand(CMD)
}

func runIdentify(c *cobra.Command, args []string) error {
	ports, err := Scan()
	if err != nil {
		return err
	}

	path, err := BoardsPath()
	if err == nil {
		ids, err := LoadBoards(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		ApplyBoards(ports, ids)
	}

	groups := GroupPorts(ports)
	PrintReport(groups, flagVerbose)

	if flagSave {
		if path == "" {
			return fmt.Errorf("cannot resolve home directory for ~/.boards")
		}
		if err := SaveBoards(path, groups); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("Saved %d device(s) to %s\n", len(groups), path)
	}
	return nil
}
