package main

import (
	"os"

	"github.com/remitbridge-transfer-orchestrator/internal/cli"
)

var Version = "dev"

func main() {
	if err := cli.Execute(Version, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
