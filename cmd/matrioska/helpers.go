package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"
)

// printStatus prints a colored status line.
func printStatus(symbol, message string, c color.Attribute) {
	fmt.Printf("%s %s\n", color.New(c).Sprint(symbol), message)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n-3]) + "..."
	}
	return s
}
