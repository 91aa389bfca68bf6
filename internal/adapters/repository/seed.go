package repository

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
)

// seedEntry is one model in the seed file. JSON seed files parse too.
type seedEntry struct {
	ID              int         `yaml:"id"`
	Name            string      `yaml:"name"`
	Description     string      `yaml:"description"`
	PathToModel     string      `yaml:"path_to_model"`
	Transformations []yaml.Node `yaml:"transformations"`
}

// LoadSeed parses a seed file. Transformations may be ids or names.
func LoadSeed(path string) ([]model.ModelRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeed, err)
	}
	return ParseSeed(raw)
}

// ParseSeed parses seed content.
func ParseSeed(raw []byte) ([]model.ModelRecord, error) {
	var entries []seedEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeed, err)
	}
	out := make([]model.ModelRecord, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" || e.PathToModel == "" {
			return nil, fmt.Errorf("%w: entry %d needs name and path_to_model", ErrSeed, i)
		}
		rec := model.ModelRecord{
			ID:           e.ID,
			Name:         e.Name,
			Description:  e.Description,
			ArtifactPath: e.PathToModel,
		}
		for _, n := range e.Transformations {
			id, err := transform.Parse(n.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrSeed, e.Name, err)
			}
			rec.TransformIDs = append(rec.TransformIDs, id)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SeedIfEmpty inserts the seed file's models when the store has none.
// It returns the number of models inserted.
func (s *Store) SeedIfEmpty(ctx context.Context, path string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug(ctx, "store already seeded", logger.Int("models", n))
		return 0, nil
	}
	recs, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	inserted, err := s.InsertModels(ctx, recs)
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "store seeded", logger.String("file", path), logger.Int("models", len(inserted)))
	return len(inserted), nil
}
