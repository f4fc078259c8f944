// The main package for the datahunter executable.
package main

import "github.com/JakeFAU/data-hunter/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
