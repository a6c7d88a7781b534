package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogEntry describes a selectable model or knowledge base.
type CatalogEntry struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type Catalog struct {
	Models         []CatalogEntry `yaml:"models"`
	KnowledgeBases []CatalogEntry `yaml:"knowledge_bases"`
}

// LoadCatalog parses the catalog bundled with the binary.
func LoadCatalog() (Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for _, entry := range catalog.Models {
		if entry.ID == "" {
			return Catalog{}, fmt.Errorf("catalog model without id")
		}
	}
	return catalog, nil
}

// HasModel reports whether id is listed in the model catalog.
func (c Catalog) HasModel(id string) bool {
	for _, entry := range c.Models {
		if entry.ID == id {
			return true
		}
	}
	return false
}
