// The main package for the statute-crawler executable.
package main

import (
	"github.com/JakeFAU/rcw-statute-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
