package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdcstore/lop/internal/objstore"
)

var cmdWrite = &cobra.Command{
	Use:   "write <path> <type> <file|->",
	Short: "Store one object and print its oid",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, typeName, file := args[0], args[1], args[2]

		kind, ok := objstore.ParseKind(typeName)
		if !ok {
			return fmt.Errorf("unknown type %q", typeName)
		}

		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("unable to read from stdin: %w", err)
			}
		} else {
			data, err = os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("unable to read %q: %w", file, err)
			}
		}

		algo, err := resolveAlgo()
		if err != nil {
			return err
		}

		store, err := objstore.Prepare(path, algo)
		if err != nil {
			return err
		}

		oid, err := store.Store(kind, data)
		if err != nil {
			return err
		}

		fmt.Println(oid.Hex())
		return nil
	},
}

func init() {
	cmdRoot.AddCommand(cmdWrite)
}
