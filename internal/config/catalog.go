package config

import (
	"context"
	"fmt"
	"os"

	"booking-bot/internal/store"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one service in the seed file.
type CatalogEntry struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
}

type Catalog struct {
	Services []CatalogEntry `yaml:"services"`
}

// LoadCatalog reads and validates a YAML service catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i, e := range c.Services {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: catalog entry %d has no name", store.ErrInvalidInput, i)
		}
		if err := store.ValidatePrice(e.Price); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
		}
	}
	return &c, nil
}

// Seed adds the catalog to s when s has no services yet. It returns the
// number of services added.
func (c *Catalog) Seed(ctx context.Context, s store.Store, log *zap.Logger) (int, error) {
	existing, err := s.ListServices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list services: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for i, e := range c.Services {
		id, err := s.AddService(ctx, e.Name, e.Description, e.Price)
		if err != nil {
			return i, fmt.Errorf("failed to seed %q: %w", e.Name, err)
		}
		log.Debug("Seeded service", zap.Int64("service_id", id), zap.String("name", e.Name))
	}
	return len(c.Services), nil
}
