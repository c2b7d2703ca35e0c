// Command fhirkit is a versioned clinical resource store backed by SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/winterop-com/fhirkit-sub003/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fhirkit: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
