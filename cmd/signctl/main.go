package main

import (
	"os"

	"wcsign/cmd/signctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
