package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/blackboard"
	"github.com/ShayCichocki/matrioska/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow shared state changes of a running pipeline",
	Long: `Print every shared state key that is added or changed while a run
writes to the blackboard. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := cfg.Storage.Checkpoints()
	path := filepath.Join(dir, blackboard.FileName)

	w, err := watch.New(dir, blackboard.FileName)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	last := blackboard.Open(path).Snapshot()
	fmt.Printf("Watching %s (%d keys)\n", path, len(last))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Changes():
			next := blackboard.Open(path).Snapshot()
			printStateDiff(last, next)
			last = next
		}
	}
}

// printStateDiff prints keys that are new or changed in next.
func printStateDiff(prev, next map[string]any) {
	ts := time.Now().Format("15:04:05")
	for _, key := range sortedKeys(next) {
		old, existed := prev[key]
		switch {
		case !existed:
			fmt.Printf("%s %s %s = %s\n", ts, color.GreenString("+"), key, compactJSON(next[key]))
		case !reflect.DeepEqual(old, next[key]):
			fmt.Printf("%s %s %s = %s\n", ts, color.YellowString("~"), key, compactJSON(next[key]))
		}
	}
}
