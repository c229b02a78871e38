package main

import (
	"github.com/spf13/cobra"

	"github.com/cdcstore/lop/internal/objstore"
)

var cmdInit = &cobra.Command{
	Use:   "init <path>",
	Short: "Create an empty loose object store at path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algo, err := resolveAlgo()
		if err != nil {
			return err
		}
		_, err = objstore.Prepare(args[0], algo)
		return err
	},
}

func init() {
	cmdRoot.AddCommand(cmdInit)
}
