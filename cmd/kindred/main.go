// Command kindred runs the social simulation.
package main

import (
	"fmt"
	"os"

	"github.com/talgya/kindred/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kindred:", err)
		os.Exit(1)
	}
}
