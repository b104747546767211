package main

import (
	"os"

	"github.com/comalice/commando/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
