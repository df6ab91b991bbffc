package monitor

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/projectqai/uartmon/cmd"
)

var (
	flagForeground bool
	flagSystemd    bool
	flagBaud       int
	flagOnly       string
	flagProxy      bool
	flagMetrics    string
)

var CMD = &cobra.Command{
	Use:   "monitor",
	Short: "Start the monitoring daemon",
	RunE:  runMonitor,
}

func init() {
	CMD.Flags().BoolVarP(&flagForeground, "foreground", "f", false, "run in the foreground")
	CMD.Flags().BoolVar(&flagSystemd, "systemd", false, "systemd notify mode (implies --foreground)")
	CMD.Flags().IntVarP(&flagBaud, "baud", "b", 0, "baud rate (default 115200)")
	CMD.Flags().StringVar(&flagOnly, "only", "", "only monitor these devices (comma-separated)")
	CMD.Flags().BoolVar(&flagProxy, "proxy", false, "hold ports exclusively and expose PTYs for clients")
	CMD.Flags().StringVar(&flagMetrics, "metrics", "", "expose Prometheus metrics on this address")
	cmd.CMD.AddCommand(CMD)
}

func runMonitor(c *cobra.Command, args []string) error {
	cfg := defaultConfig()

	fc, err := loadFileConfig()
	if err != nil {
		return err
	}
	if fc.Monitor.Baud > 0 {
		cfg.Baud = fc.Monitor.Baud
	}
	if fc.Monitor.Retention > 0 {
		cfg.Retention = fc.Monitor.Retention
	}
	if fc.Monitor.Metrics != "" {
		cfg.Metrics = fc.Monitor.Metrics
	}

	if flagBaud > 0 {
		cfg.Baud = flagBaud
	}
	cfg.Only = flagOnly
	cfg.Proxy = flagProxy
	cfg.Systemd = flagSystemd
	if flagMetrics != "" {
		cfg.Metrics = flagMetrics
	}

	if !flagForeground && !flagSystemd {
		slog.Info("logs", "module", "monitor", "path", cfg.BaseDir+"/latest/*.log")
	}

	return Run(cfg)
}
