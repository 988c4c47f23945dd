// Command ragpipe is the entry point for the knowledge retrieval pipeline.
// It provides a CLI interface (via Cobra) for ingesting documents and
// querying the vector store, and an HTTP server exposing the same pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragpipe-go/cmd/ragpipe/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
