package config

import (
	"fmt"
	"os"

	"github.com/dandantas/shopwatch/internal/model"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Shops []model.Shop `yaml:"shops"`
}

// LoadShopSeed reads shop definitions from a YAML file. ${VAR} references are
// expanded from the environment so that secrets can stay out of the file.
func LoadShopSeed(path string) ([]model.Shop, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i := range seed.Shops {
		if err := seed.Shops[i].Validate(); err != nil {
			return nil, fmt.Errorf("shop #%d (%s): %w", i+1, seed.Shops[i].Name, err)
		}
	}

	return seed.Shops, nil
}
