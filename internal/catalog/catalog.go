// Package catalog loads the static application template list the
// marketplace offers for one-click deployment. It is read once at
// startup and never mutated afterward.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alephdeploy/control-plane/internal/models"
)

type appData struct {
	Apps       []models.AppTemplate `json:"apps"`
	Categories []models.Category    `json:"categories"`
}

// Catalog is a read-only, concurrency-safe view over the app template
// list. Safe for concurrent reads because it is built once and never
// written to after Load returns.
type Catalog struct {
	apps       map[string]models.AppTemplate
	ordered    []models.AppTemplate
	categories []models.Category
}

// Load reads and parses the app catalog file at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var data appData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	c := &Catalog{
		apps:       make(map[string]models.AppTemplate, len(data.Apps)),
		ordered:    data.Apps,
		categories: data.Categories,
	}
	for _, a := range data.Apps {
		c.apps[a.ID] = a
	}
	return c, nil
}

// Get returns the template for id, and whether it was found.
func (c *Catalog) Get(id string) (models.AppTemplate, bool) {
	t, ok := c.apps[id]
	return t, ok
}

// List returns all templates, optionally filtered by category.
func (c *Catalog) List(category string) []models.AppTemplate {
	if category == "" {
		return append([]models.AppTemplate(nil), c.ordered...)
	}
	out := make([]models.AppTemplate, 0, len(c.ordered))
	for _, a := range c.ordered {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// Categories returns the configured category list.
func (c *Catalog) Categories() []models.Category {
	return append([]models.Category(nil), c.categories...)
}
