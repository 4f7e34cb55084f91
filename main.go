// The main package for the hybrid-search executable.
package main

import (
	"github.com/JakeFAU/hybrid-search/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
