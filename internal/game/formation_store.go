package game

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/icepitch/internal/models"
)

// formationFile is the on-disk layout of a formations file:
//
//	[[formation]]
//	name = "5-3-2"
//	positions = [[0.05, 0.5], [0.2, 0.1], ...]
type formationFile struct {
	Formation []struct {
		Name      string       `toml:"name"`
		Positions [][2]float64 `toml:"positions"`
	} `toml:"formation"`
}

// DecodeFormations parses TOML formations from r. It does not validate them.
func DecodeFormations(r io.Reader) ([]Formation, error) {
	var ff formationFile
	if _, err := toml.NewDecoder(r).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decode formations: %w", err)
	}

	out := make([]Formation, 0, len(ff.Formation))
	for _, entry := range ff.Formation {
		f := Formation{Name: entry.Name, Positions: make([]Vec2, 0, len(entry.Positions))}
		for _, p := range entry.Positions {
			f.Positions = append(f.Positions, NewVec2(p[0], p[1]))
		}
		out = append(out, f)
	}
	return out, nil
}

// LoadFormationsFile adds every formation in the TOML file at path to the
// catalog. Invalid entries are skipped and logged. It returns how many were
// added.
func LoadFormationsFile(path string, catalog *FormationCatalog) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	formations, err := DecodeFormations(f)
	if err != nil {
		return 0, err
	}
	return addAll(catalog, formations, path), nil
}

// LoadFormationsFromDB adds every formation in the formations table to the
// catalog.
func LoadFormationsFromDB(db *sqlx.DB, catalog *FormationCatalog) (int, error) {
	var rows []models.FormationSlot
	if err := db.Select(&rows, `SELECT name, slot, x, y, created_at FROM formations ORDER BY name, slot`); err != nil {
		return 0, fmt.Errorf("query formations: %w", err)
	}
	return addAll(catalog, FormationsFromRows(rows), "database"), nil
}

// FormationsFromRows groups slot rows (ordered by name, slot) into formations.
func FormationsFromRows(rows []models.FormationSlot) []Formation {
	var out []Formation
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].Name != r.Name {
			out = append(out, Formation{Name: r.Name})
		}
		cur := &out[len(out)-1]
		cur.Positions = append(cur.Positions, NewVec2(r.X, r.Y))
	}
	return out
}

// SaveFormation upserts every slot of f in one transaction.
func SaveFormation(db *sqlx.DB, f Formation) error {
	if err := f.Validate(); err != nil {
		return err
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, p := range f.Positions {
		_, err := tx.Exec(`INSERT INTO formations (name, slot, x, y) VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, slot) DO UPDATE SET x = EXCLUDED.x, y = EXCLUDED.y`,
			f.Name, i, p.X, p.Y)
		if err != nil {
			return fmt.Errorf("save formation %s slot %d: %w", f.Name, i, err)
		}
	}
	return tx.Commit()
}

func addAll(catalog *FormationCatalog, formations []Formation, source string) int {
	added := 0
	for _, f := range formations {
		if err := catalog.Add(f); err != nil {
			log.Printf("[FORMATION] Skipping formation from %s: %v", source, err)
			continue
		}
		added++
	}
	log.Printf("[FORMATION] Loaded %d formation(s) from %s", added, source)
	return added
}
