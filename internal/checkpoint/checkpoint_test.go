package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

func TestPlanStore_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		plan models.Plan
	}{
		{
			name: "graph plan",
			plan: &models.GraphPlan{
				ProjectName: "Todo",
				ProjectGoal: "A todo app",
				Modules: []*models.WorkUnit{
					{ID: "store", Name: "Store", Instructions: "keep items", Writes: []string{"api"}},
					{ID: "ui", Name: "UI", Instructions: "render", DependsOn: []string{"store"}, Reads: []string{"api"}},
				},
				Integration: "wire ui to store",
			},
		},
		{
			name: "ordered plan",
			plan: &models.OrderedPlan{
				ProjectName: "Project_2_Files",
				Files: []*models.WorkUnit{
					{ID: "style", Name: "style", Extension: "css", Order: 1, Writes: []string{"classes"}},
					{ID: "index", Name: "index", Extension: "html", Order: 2, Reads: []string{"classes"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewPlanStore(t.TempDir())
			if err := store.Save("run-1", tt.plan); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := store.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Schema() != tt.plan.Schema() {
				t.Errorf("Schema() = %s, want %s", got.Schema(), tt.plan.Schema())
			}
			if !reflect.DeepEqual(got, tt.plan) {
				t.Errorf("Load() = %+v, want %+v", got, tt.plan)
			}
		})
	}
}

func TestPlanStore_LoadMissing(t *testing.T) {
	_, err := NewPlanStore(t.TempDir()).Load()
	if !errors.Is(err, ErrNoPlan) {
		t.Errorf("Load() error = %v, want ErrNoPlan", err)
	}
}

func TestPlanStore_UnknownSchema(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"schema": "tree", "plan": {}}`)
	if err := os.WriteFile(filepath.Join(dir, PlanFileName), data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewPlanStore(dir).Load(); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestPlanStore_LoadRun(t *testing.T) {
	store := NewPlanStore(t.TempDir())
	if err := store.Save("run-a", &models.OrderedPlan{ProjectName: "a"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("run-b", &models.OrderedPlan{ProjectName: "b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := store.LoadRun("run-a"); !errors.Is(err, ErrNoPlan) {
		t.Errorf("LoadRun(run-a) error = %v, want ErrNoPlan", err)
	}

	got, err := store.LoadRun("run-b")
	if err != nil {
		t.Fatalf("LoadRun(run-b): %v", err)
	}
	if got.Name() != "b" {
		t.Errorf("LoadRun(run-b) name = %q, want b", got.Name())
	}

	if latest, err := store.Load(); err != nil || latest.Name() != "b" {
		t.Errorf("Load() = %v, %v", latest, err)
	}
}

func TestPlanStore_LoadRunWithoutOwner(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"schema": "ordered", "plan": {"project_name": "old"}}`)
	if err := os.WriteFile(filepath.Join(dir, PlanFileName), data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewPlanStore(dir).LoadRun("run-a"); !errors.Is(err, ErrNoPlan) {
		t.Errorf("LoadRun() error = %v, want ErrNoPlan", err)
	}
}

func TestArtifactStore_Save(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir)

	a := &models.Artifact{UnitID: "style", FileName: "style.css", Content: "body {}"}
	if err := store.Save(a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "style.css"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "body {}" {
		t.Errorf("content = %q, want %q", data, "body {}")
	}
	if !filepath.IsAbs(a.Path) {
		t.Errorf("Path = %q, want absolute", a.Path)
	}

	content, err := store.Load("style.css")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if content != "body {}" {
		t.Errorf("Load() = %q", content)
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"style.css"}) {
		t.Errorf("List() = %v", names)
	}
}

func TestArtifactStore_SaveFallsBackToUnitID(t *testing.T) {
	dir := t.TempDir()
	a := &models.Artifact{UnitID: "mod_main", Content: "x"}
	if err := NewArtifactStore(dir).Save(a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a.FileName != "mod_main.txt" {
		t.Errorf("FileName = %q, want mod_main.txt", a.FileName)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"index.html", "index.html"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"dir/file.go", "dir_file.go"},
		{`win\path.txt`, "win_path.txt"},
		{".hidden", "hidden"},
		{"  spaced.md  ", "spaced.md"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFileName(tt.in); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
