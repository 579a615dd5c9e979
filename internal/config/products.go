package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/maltedev/price-tracker/internal/models"
)

var ErrNoProducts = errors.New("no products configured")

type productsFile struct {
	Products []models.ProductSpec `yaml:"products"`
}

// LoadProducts reads the product list from a YAML file.
func LoadProducts(path string) ([]models.ProductSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read products file: %w", err)
	}
	return ParseProducts(data)
}

func ParseProducts(data []byte) ([]models.ProductSpec, error) {
	var file productsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse products file: %w", err)
	}

	if len(file.Products) == 0 {
		return nil, ErrNoProducts
	}

	for i := range file.Products {
		p := &file.Products[i]
		p.Name = strings.TrimSpace(p.Name)
		p.URL = strings.TrimSpace(p.URL)
		p.Site = models.ParseSite(string(p.Site))

		if p.Name == "" {
			return nil, fmt.Errorf("product %d: name is required", i+1)
		}
		if p.URL == "" {
			return nil, fmt.Errorf("product %q: url is required", p.Name)
		}
		if p.TargetPrice < 0 {
			return nil, fmt.Errorf("product %q: target_price cannot be negative", p.Name)
		}
		if p.Site == "" {
			return nil, fmt.Errorf("product %q: site is required", p.Name)
		}
	}

	return file.Products, nil
}
