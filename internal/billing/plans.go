package billing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is one subscription tier from the catalog.
type Plan struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	PriceMonthly  float64  `yaml:"price_monthly" json:"price_monthly"`
	Checkout      bool     `yaml:"checkout" json:"checkout"`
	ContactSales  bool     `yaml:"contact_sales" json:"contact_sales,omitempty"`
	Features      []string `yaml:"features" json:"features,omitempty"`
	HighlightText string   `yaml:"highlight" json:"highlight,omitempty"`
}

// Catalog is the set of offered plans, in display order.
type Catalog struct {
	Plans []Plan `yaml:"plans" json:"plans"`
}

// DefaultCatalog mirrors plans.yaml and serves as the fallback when no
// catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{Plans: []Plan{
		{
			ID:           "free",
			Name:         "Free",
			PriceMonthly: 0,
			Features:     []string{"3 practice interviews per month", "Basic feedback"},
		},
		{
			ID:            "pro",
			Name:          "Pro",
			PriceMonthly:  19,
			Checkout:      true,
			Features:      []string{"Unlimited practice interviews", "Detailed evaluation reports", "Resume-aware questions"},
			HighlightText: "Most popular",
		},
		{
			ID:           "enterprise",
			Name:         "Enterprise",
			ContactSales: true,
			Features:     []string{"Team seats and admin controls", "Custom question banks", "Dedicated support"},
		},
	}}
}

// LoadCatalog reads a plan catalog from a YAML file. A missing file falls
// back to the default catalog; a present but invalid file is an error.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, fmt.Errorf("plan catalog %s: %w", path, err)
	}
	return &catalog, nil
}

func (c *Catalog) validate() error {
	if len(c.Plans) == 0 {
		return fmt.Errorf("no plans defined")
	}
	seen := make(map[string]bool, len(c.Plans))
	for i, p := range c.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan %d: missing id", i)
		}
		if p.Name == "" {
			return fmt.Errorf("plan %s: missing name", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("plan %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if p.Checkout && p.ContactSales {
			return fmt.Errorf("plan %s: contact-sales plans cannot be checkoutable", p.ID)
		}
	}
	return nil
}

// Lookup finds a plan by id.
func (c *Catalog) Lookup(id string) (*Plan, bool) {
	for i := range c.Plans {
		if c.Plans[i].ID == id {
			return &c.Plans[i], true
		}
	}
	return nil, false
}
