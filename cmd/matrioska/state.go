package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/blackboard"
)

var stateKeys bool

var stateCmd = &cobra.Command{
	Use:   "state [key]",
	Short: "Print the shared state",
	Long: `Print the shared blackboard as JSON.

With a key, prints only that value. A key that has not been written is an error.
With --keys, prints the stored key names one per line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runState,
}

func init() {
	stateCmd.Flags().BoolVar(&stateKeys, "keys", false, "List the stored keys instead of their values")
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	board := blackboard.Open(filepath.Join(cfg.Storage.Checkpoints(), blackboard.FileName))

	var key string
	if len(args) == 1 {
		key = args[0]
	}
	return writeState(os.Stdout, board, key, stateKeys)
}

// writeState prints the whole board, a single key, or the key names.
func writeState(w io.Writer, board *blackboard.Store, key string, keysOnly bool) error {
	if keysOnly {
		if key != "" {
			return fmt.Errorf("--keys does not take a key argument")
		}
		for _, k := range board.Keys() {
			fmt.Fprintln(w, k)
		}
		return nil
	}

	var value any = board.Snapshot()
	if key != "" {
		got := board.Read([]string{key})
		v, ok := got[key]
		if !ok {
			return fmt.Errorf("key %q is not in the shared state", key)
		}
		value = v
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode shared state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
