package main

import (
	"os"

	"github.com/solatis/verdict/cmd/verdict/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
