package main

import (
	"fmt"
	"os"

	"github.com/yairfalse/lttd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lttd: %v\n", err)
		os.Exit(1)
	}
}
