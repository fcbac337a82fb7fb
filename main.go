// The main package for the siteingest executable.
package main

import (
	"fmt"
	"os"

	"github.com/harvestiq/siteingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
