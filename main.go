// The main package for the hillwatch executable.
package main

import (
	"github.com/JakeFAU/hillwatch/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
