// Command simple-odb is a thin exerciser over the loose object store (spec
// §6): it is not part of the core subsystem, but part of its observable
// test surface, the way restic's cmd/restic wraps internal/repository for
// manual poking and integration tests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdcstore/lop/internal/hashalgo"
)

var algoName string

var cmdRoot = &cobra.Command{
	Use:           "simple-odb",
	Short:         "Exercise the loose object store directly",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cmdRoot.PersistentFlags().StringVar(&algoName, "algo", hashalgo.SHA256.Name, "hash algorithm (sha1|sha256)")
}

func resolveAlgo() (hashalgo.Algo, error) {
	algo, ok := hashalgo.Lookup(algoName)
	if !ok {
		return hashalgo.Algo{}, fmt.Errorf("unknown hash algorithm %q", algoName)
	}
	return algo, nil
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "simple-odb:", err)
		os.Exit(1)
	}
}
