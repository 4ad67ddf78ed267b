package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stocksiege/internal/market"
)

// SeasonSeed is the YAML shape for bootstrapping a season: mode plus the
// eight item definitions.
type SeasonSeed struct {
	Mode  string `yaml:"mode"`
	Items []struct {
		Code  string `yaml:"code"`
		Name  string `yaml:"name"`
		Price int64  `yaml:"price"`
	} `yaml:"items"`
}

// LoadSeasonSeed reads and validates a season seed file. Every item code
// must be one of the fixed slots and prices must fall inside the allowed
// range.
func LoadSeasonSeed(path string) (market.GameMode, map[string]string, map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, nil, err
	}
	var seed SeasonSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return "", nil, nil, fmt.Errorf("parse season seed: %w", err)
	}
	mode, err := market.ParseGameMode(seed.Mode)
	if err != nil {
		return "", nil, nil, err
	}

	valid := make(map[string]bool, len(market.ItemCodes))
	for _, c := range market.ItemCodes {
		valid[c] = true
	}
	names := make(map[string]string, len(seed.Items))
	prices := make(map[string]int64, len(seed.Items))
	for _, it := range seed.Items {
		if !valid[it.Code] {
			return "", nil, nil, fmt.Errorf("season seed: unknown item code %q", it.Code)
		}
		if it.Price < 0 || it.Price > market.MaxItemPrice {
			return "", nil, nil, fmt.Errorf("season seed: item %s price %d is out of range", it.Code, it.Price)
		}
		names[it.Code] = it.Name
		prices[it.Code] = it.Price
	}
	return mode, names, prices, nil
}
