package main

import (
	"os"

	"github.com/msto63/wiener/cmd/wiener/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
