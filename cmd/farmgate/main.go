package main

import (
	"os"

	"github.com/farmgate-io/farmgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
