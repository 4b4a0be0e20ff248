package main

import (
	"os"

	"github.com/solatis/weaver/cmd/weaver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
