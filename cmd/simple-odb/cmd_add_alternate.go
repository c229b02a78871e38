package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cdcstore/lop/internal/objstore"
)

var cmdAddAlternate = &cobra.Command{
	Use:   "add-alternate <path>",
	Short: "Register path's objects directory as an alternate of ./objects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algo, err := resolveAlgo()
		if err != nil {
			return err
		}

		store, err := objstore.Prepare(args[0], algo)
		if err != nil {
			return err
		}

		return addToAlternatesFile(filepath.Join(store.Root(), "objects"))
	},
}

func init() {
	cmdRoot.AddCommand(cmdAddAlternate)
}

// addToAlternatesFile appends objectsDir to ./objects/info/alternates,
// creating the file if needed and skipping the append if the entry is
// already present, mirroring odb_add_to_alternates_file's dedup-on-append
// behavior.
func addToAlternatesFile(objectsDir string) error {
	const infoDir = "objects/info"
	if err := os.MkdirAll(infoDir, 0777); err != nil {
		return fmt.Errorf("create %s: %w", infoDir, err)
	}

	alternatesPath := filepath.Join(infoDir, "alternates")

	if existing, err := os.ReadFile(alternatesPath); err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(existing)))
		for scanner.Scan() {
			if scanner.Text() == objectsDir {
				return nil
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", alternatesPath, err)
	}

	f, err := os.OpenFile(alternatesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open %s: %w", alternatesPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, objectsDir); err != nil {
		return fmt.Errorf("write %s: %w", alternatesPath, err)
	}
	return nil
}
