package game

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/playmatatu/icepitch/internal/models"
)

const sampleFormations = `
[[formation]]
name = "5-3-2"
positions = [
  [0.05, 0.5],
  [0.2, 0.1], [0.2, 0.3], [0.2, 0.5], [0.2, 0.7], [0.2, 0.9],
  [0.45, 0.3], [0.45, 0.5], [0.45, 0.7],
  [0.7, 0.4], [0.7, 0.6],
]

[[formation]]
name = "broken"
positions = [[0.05, 0.5], [0.2, 0.1]]
`

func TestDecodeFormations(t *testing.T) {
	formations, err := DecodeFormations(strings.NewReader(sampleFormations))
	if err != nil {
		t.Fatal(err)
	}
	if len(formations) != 2 {
		t.Fatalf("got %d formations, want 2", len(formations))
	}
	if formations[0].Name != "5-3-2" || len(formations[0].Positions) != FormationSize {
		t.Errorf("first formation = %+v", formations[0])
	}
	if formations[0].Positions[5] != NewVec2(0.2, 0.9) {
		t.Errorf("slot 5 = %v, want (0.2,0.9)", formations[0].Positions[5])
	}
}

func TestDecodeFormationsRejectsBadTOML(t *testing.T) {
	if _, err := DecodeFormations(strings.NewReader("[[formation]\nname=")); err == nil {
		t.Error("expected a decode error")
	}
}

func TestLoadFormationsFileSkipsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formations.toml")
	if err := os.WriteFile(path, []byte(sampleFormations), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog := DefaultFormations()
	added, err := LoadFormationsFile(path, catalog)
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if !catalog.Has("5-3-2") || catalog.Has("broken") {
		t.Errorf("catalog names = %v", catalog.Names())
	}
	if len(catalog.Layout("5-3-2", TeamB)) != FormationSize {
		t.Error("loaded formation should lay out a full side")
	}
}

func TestLoadFormationsFileMissing(t *testing.T) {
	if _, err := LoadFormationsFile(filepath.Join(t.TempDir(), "nope.toml"), NewFormationCatalog()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFormationsFromRows(t *testing.T) {
	rows := []models.FormationSlot{
		{Name: "a", Slot: 0, X: 0.05, Y: 0.5},
		{Name: "a", Slot: 1, X: 0.2, Y: 0.2},
		{Name: "b", Slot: 0, X: 0.05, Y: 0.5},
	}
	got := FormationsFromRows(rows)
	if len(got) != 2 || len(got[0].Positions) != 2 || len(got[1].Positions) != 1 {
		t.Errorf("grouped = %+v", got)
	}
}
