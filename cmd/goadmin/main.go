package main

import (
	"os"

	"github.com/MrEthical07/goAdmin/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
