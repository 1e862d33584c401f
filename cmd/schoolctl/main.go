package main

import (
	"os"

	"example.com/mergington/cmd/schoolctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
