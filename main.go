package main

import (
	"github.com/JakeFAU/site-discovery-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
