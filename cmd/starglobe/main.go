// Command starglobe serves a rotatable wireframe globe with the live ground
// position of a tracked satellite.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
