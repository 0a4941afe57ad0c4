package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

type routesFile struct {
	Routes []model.TriangularRoute `yaml:"routes"`
}

// LoadRoutes reads triangular route definitions from a yaml file. Routes are
// static configuration; each must name exactly three legs on one venue.
func LoadRoutes(path string) ([]model.TriangularRoute, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}

	var f routesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}

	for _, r := range f.Routes {
		if r.Name == "" || r.Venue == "" || r.StartAsset == "" {
			return nil, fmt.Errorf("route %q: name, venue and start_asset are required", r.Name)
		}
		if len(r.Legs) != 3 {
			return nil, fmt.Errorf("route %s: expected 3 legs, got %d", r.Name, len(r.Legs))
		}
		for i, leg := range r.Legs {
			if leg.Action != model.SellBase && leg.Action != model.BuyBase {
				return nil, fmt.Errorf("route %s leg %d: unknown action %q", r.Name, i, leg.Action)
			}
		}
	}
	return f.Routes, nil
}
