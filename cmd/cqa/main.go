// Command cqa answers questions about consumer financial complaints with
// retrieval-augmented generation over the CFPB complaint narratives. It
// provides a CLI interface (via Cobra) and an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/complaintqa/cmd/cqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
