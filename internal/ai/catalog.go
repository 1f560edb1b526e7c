package ai

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mailpilot/internal/models"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// ModelPrice is USD per million tokens
type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// ProviderSpec describes one OpenAI-compatible endpoint
type ProviderSpec struct {
	BaseURL       string                `yaml:"base_url"`
	RatePerMinute int                   `yaml:"rate_per_minute"`
	Models        map[string]string     `yaml:"models"`
	Pricing       map[string]ModelPrice `yaml:"pricing"`
}

// Catalog lists the known providers with their default models and prices
type Catalog struct {
	Providers map[string]ProviderSpec `yaml:"providers"`
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(builtinCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML, expanding ${VAR} references first
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	if len(c.Providers) == 0 {
		return nil, fmt.Errorf("provider catalog lists no providers")
	}

	normalized := make(map[string]ProviderSpec, len(c.Providers))
	for name, spec := range c.Providers {
		normalized[normalizeName(name)] = spec
	}
	c.Providers = normalized
	return &c, nil
}

// Names returns the catalog's providers, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns the provider's entry
func (c *Catalog) Spec(provider string) (ProviderSpec, bool) {
	spec, ok := c.Providers[normalizeName(provider)]
	return spec, ok
}

// DefaultModel returns the model used for a provider in a mode, or "" if none is listed
func (c *Catalog) DefaultModel(provider string, mode models.Mode) string {
	spec, ok := c.Spec(provider)
	if !ok {
		return ""
	}
	if model := spec.Models[string(mode)]; model != "" {
		return model
	}
	return spec.Models[string(models.ModeBalanced)]
}

// Price looks up a model's price
func (c *Catalog) Price(provider, model string) (ModelPrice, bool) {
	spec, ok := c.Spec(provider)
	if !ok {
		return ModelPrice{}, false
	}
	price, ok := spec.Pricing[model]
	return price, ok
}

// Cost estimates the USD cost of one call
func (c *Catalog) Cost(provider, model string, promptTokens, completionTokens int) float64 {
	price, ok := c.Price(provider, model)
	if !ok {
		return 0
	}
	return (float64(promptTokens)*price.Input + float64(completionTokens)*price.Output) / 1_000_000
}

// UnitPrice ranks models by cost. Unpriced models rank as the most expensive.
func (c *Catalog) UnitPrice(provider, model string) float64 {
	price, ok := c.Price(provider, model)
	if !ok {
		return math.Inf(1)
	}
	return price.Input + price.Output
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
