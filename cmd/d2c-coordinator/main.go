package main

import (
	"os"

	"github.com/d2c-launcher/coordinator/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
