package main

import (
	"fmt"
	"os"

	"github.com/mithrel/oneshot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oneshot-cli:", err)
		os.Exit(1)
	}
}
