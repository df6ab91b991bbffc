package main

import (
	"os"

	_ "github.com/projectqai/uartmon/logging"

	"github.com/projectqai/uartmon/cmd"

	_ "github.com/projectqai/uartmon/cli"
	_ "github.com/projectqai/uartmon/identify"
	_ "github.com/projectqai/uartmon/monitor"
	_ "github.com/projectqai/uartmon/version"
)

func main() {
	err := cmd.CMD.Execute()
	if err != nil {
		os.Exit(1)
	}
}
