package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

type catalogFile struct {
	Packages []catalogEntry `yaml:"packages"`
}

type catalogEntry struct {
	Name    string `yaml:"name"`
	Credits int64  `yaml:"credits"`
	Price   string `yaml:"price"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// parseCatalog reads a YAML catalog and validates every entry.
func parseCatalog(r io.Reader) ([]packages.Package, error) {
	var f catalogFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidCatalog, err)
	}

	if len(f.Packages) == 0 {
		return nil, fmt.Errorf("%w: no packages", ErrInvalidCatalog)
	}

	seen := make(map[string]struct{}, len(f.Packages))
	out := make([]packages.Package, 0, len(f.Packages))

	for i, e := range f.Packages {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d: name required", ErrInvalidCatalog, i)
		}

		if e.Credits < 1 {
			return nil, fmt.Errorf("%w: %q: credits must be >= 1", ErrInvalidCatalog, name)
		}

		price, err := decimal.NewFromString(strings.TrimSpace(e.Price))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: price: %w", ErrInvalidCatalog, name, err)
		}

		if !price.IsPositive() || price.Exponent() < -2 {
			return nil, fmt.Errorf("%w: %q: price must be positive with at most 2 decimals", ErrInvalidCatalog, name)
		}

		key := fmt.Sprintf("%s/%d", name, e.Credits)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q with %d credits listed twice", ErrInvalidCatalog, name, e.Credits)
		}
		seen[key] = struct{}{}

		active := true
		if e.Active != nil {
			active = *e.Active
		}

		out = append(out, packages.Package{
			Name:           name,
			CreditsGranted: e.Credits,
			Price:          price,
			IsActive:       active,
		})
	}

	return out, nil
}
