// Command arandu ingests thesis PDFs into a parent/child vector index.
// It provides a CLI interface (via Cobra) and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/mgruene/ARANDU-PUB/cmd/arandu/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
