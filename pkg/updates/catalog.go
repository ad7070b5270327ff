package updates

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

// Catalog is the vetted list of product versions. Entries name exactly the
// versions known to work; the tested channel offers nothing outside it.
type Catalog struct {
	Products []CatalogEntry `yaml:"products"`
}

type CatalogEntry struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoadCatalog reads the vetted version list. A missing file yields an empty
// catalog, which makes the tested channel offer nothing.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, errors.NewIOError("failed to read version catalog", err).WithContext("path", path)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, errors.NewValidationError("malformed version catalog", err).WithContext("path", path)
	}
	return &catalog, nil
}

// Contains reports whether a product version is on the vetted list
func (c *Catalog) Contains(product, version string) bool {
	for _, entry := range c.Products {
		if entry.Name == product && entry.Version == version {
			return true
		}
	}
	return false
}
