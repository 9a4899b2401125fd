package graph

import (
	"errors"
	"reflect"
	"testing"
)

type testNode struct {
	id   string
	deps []string
}

func (n testNode) NodeID() string         { return n.id }
func (n testNode) Dependencies() []string { return n.deps }

func nodes(ns ...testNode) []Node {
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

func TestTopologicalSort(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  []string
	}{
		{
			name: "valid listed order is preserved",
			nodes: nodes(
				testNode{id: "html"},
				testNode{id: "css", deps: []string{"html"}},
				testNode{id: "auth", deps: []string{"html"}},
				testNode{id: "api", deps: []string{"auth"}},
			),
			want: []string{"html", "css", "auth", "api"},
		},
		{
			name: "dependents listed first are moved after their dependencies",
			nodes: nodes(
				testNode{id: "api", deps: []string{"auth"}},
				testNode{id: "auth", deps: []string{"html"}},
				testNode{id: "html"},
			),
			want: []string{"html", "auth", "api"},
		},
		{
			name: "independent nodes keep insertion order",
			nodes: nodes(
				testNode{id: "c"},
				testNode{id: "a"},
				testNode{id: "b"},
			),
			want: []string{"c", "a", "b"},
		},
		{
			name:  "empty graph",
			nodes: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			if err := g.Build(tt.nodes); err != nil {
				t.Fatalf("Build: %v", err)
			}
			got, err := g.TopologicalSort()
			if err != nil {
				t.Fatalf("TopologicalSort: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TopologicalSort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	g := New()
	err := g.Build(nodes(
		testNode{id: "a", deps: []string{"b"}},
		testNode{id: "b", deps: []string{"a"}},
	))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build error = %v, want ErrCycleDetected", err)
	}
}

func TestBuildRejectsSelfDependency(t *testing.T) {
	g := New()
	err := g.Build(nodes(testNode{id: "a", deps: []string{"a"}}))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build error = %v, want ErrCycleDetected", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	g := New()
	if err := g.Build(nodes(testNode{id: "a", deps: []string{"missing"}})); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	g := New()
	if err := g.Build(nodes(testNode{id: "a"}, testNode{id: "a"})); err == nil {
		t.Fatal("expected error for duplicate node")
	}
}

func TestDependenciesAndSize(t *testing.T) {
	g := New()
	if err := g.Build(nodes(
		testNode{id: "a"},
		testNode{id: "b", deps: []string{"a"}},
	)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Size() != 2 {
		t.Errorf("Size() = %d, want 2", g.Size())
	}
	if got := g.Dependencies("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Dependencies(b) = %v, want [a]", got)
	}
	if g.HasCycle() {
		t.Error("HasCycle() = true, want false")
	}
}
