// Package executor materializes work units into artifacts through the
// generation backend and the shared blackboard.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ShayCichocki/matrioska/internal/api"
	"github.com/ShayCichocki/matrioska/internal/blackboard"
	"github.com/ShayCichocki/matrioska/internal/checkpoint"
	"github.com/ShayCichocki/matrioska/internal/extract"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// DefaultMaxTokens bounds each unit completion when Options leaves it unset.
const DefaultMaxTokens = 4000

// Options configures an Executor.
type Options struct {
	// Schema selects the prompt layout.
	Schema models.Schema
	// Marker introduces the update block. Defaults to extract.DefaultMarker.
	Marker string
	// Strip removes the update block from persisted artifact content.
	Strip bool
	// Lenient enables repair decoding of update blocks.
	Lenient bool
	// MaxTokens bounds each completion.
	MaxTokens int
}

// Executor runs one work unit at a time. It is not safe for concurrent use;
// unit order is the synchronization mechanism for the blackboard.
type Executor struct {
	gen       api.Generator
	board     *blackboard.Store
	artifacts *checkpoint.ArtifactStore
	opts      Options
}

// New creates an Executor.
func New(gen api.Generator, board *blackboard.Store, artifacts *checkpoint.ArtifactStore, opts Options) *Executor {
	if opts.Marker == "" {
		opts.Marker = extract.DefaultMarker
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if !opts.Schema.Valid() {
		opts.Schema = models.SchemaGraph
	}
	return &Executor{
		gen:       gen,
		board:     board,
		artifacts: artifacts,
		opts:      opts,
	}
}

// Execute generates the unit, publishes its updates and persists the artifact.
// A backend failure yields an empty artifact with Error set. The returned
// error is reserved for persistence failures, which end the run.
func (e *Executor) Execute(ctx context.Context, unit *models.WorkUnit) (*models.Artifact, error) {
	entries := e.board.Read(unit.Reads)
	prompt := buildPrompt(e.opts.Schema, unit, entries, e.opts.Marker)

	artifact := &models.Artifact{
		UnitID:   unit.ID,
		Name:     unit.Name,
		FileName: unit.FileName(),
		Order:    unit.Order,
	}

	content, err := e.gen.Generate(ctx, api.Request{
		Prompt:    prompt,
		MaxTokens: e.opts.MaxTokens,
	})
	if err != nil {
		log.Printf("[executor] %s: generation failed: %v", unit.Label(), err)
		artifact.Error = err.Error()
		content = ""
	}

	updates, err := extract.Updates(content, extract.Options{
		Marker:  e.opts.Marker,
		Lenient: e.opts.Lenient,
	})
	if err != nil && !errors.Is(err, extract.ErrNoMarker) {
		log.Printf("[executor] %s: ignoring update block: %v", unit.Label(), err)
	}

	if len(updates) > 0 {
		if err := e.board.Write(updates); err != nil {
			return nil, fmt.Errorf("publish updates for %s: %w", unit.ID, err)
		}
		artifact.Updates = updates
	}

	if e.opts.Strip {
		content = extract.StripUpdates(content, e.opts.Marker)
	}
	artifact.Content = content

	if err := e.artifacts.Save(artifact); err != nil {
		return nil, fmt.Errorf("persist artifact for %s: %w", unit.ID, err)
	}

	log.Printf("[executor] %s: %d bytes, %d updates -> %s", unit.Label(), len(content), len(updates), artifact.FileName)
	return artifact, nil
}

// BuildPrompt assembles the generation prompt for unit using the default
// update marker. entries are the blackboard values the unit declared it reads.
func BuildPrompt(schema models.Schema, unit *models.WorkUnit, entries map[string]any) string {
	return buildPrompt(schema, unit, entries, extract.DefaultMarker)
}

func buildPrompt(schema models.Schema, unit *models.WorkUnit, entries map[string]any, marker string) string {
	var sb strings.Builder

	if schema == models.SchemaOrdered {
		fmt.Fprintf(&sb, "FILE: %s\n\nGENERATION INSTRUCTIONS:\n%s", unit.FileName(), unit.Instructions)
		sb.WriteString(renderContext("AVAILABLE SHARED INFORMATION (from previous files):", entries))
		fmt.Fprintf(&sb, "\n\nREQUIREMENTS:\n%s\n\n", unit.Requirements)
		sb.WriteString("Generate the COMPLETE, REDUCED, and EFFICIENT code for this file. ")
		sb.WriteString("Use CDNs and lightweight libraries when appropriate.\n\n")
		sb.WriteString("If you define key information that other files need (e.g., element IDs, class names, API routes), ")
		sb.WriteString("list them at the end in the format:\n")
	} else {
		name := unit.Name
		if name == "" {
			name = unit.ID
		}
		fmt.Fprintf(&sb, "MODULE: %s\n\nMANUAL:\n%s", name, unit.Instructions)
		sb.WriteString(renderContext("AVAILABLE CONTEXT (from previous modules):", entries))
		fmt.Fprintf(&sb, "\n\nRULES:\n%s\n\n", unit.Requirements)
		sb.WriteString("Execute this task. If you generate data that other modules need, ")
		sb.WriteString("list them at the end in the format:\n")
	}

	sb.WriteString(marker)
	sb.WriteString("\n{\n  \"key1\": \"value1\",\n  \"key2\": [\"item1\", \"item2\"]\n}\n")
	return sb.String()
}

// renderContext lists entries sorted by key, one "- key: <json>" line each.
// It returns an empty string when there is nothing to show.
func renderContext(heading string, entries map[string]any) string {
	if len(entries) == 0 {
		return ""
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(heading)
	sb.WriteString("\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, encodeValue(entries[k]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func encodeValue(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(buf.String())
}
