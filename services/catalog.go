package services

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// NodeTier is one catalog entry. Tiers are fixed for the process lifetime.
type NodeTier struct {
	ID           string          `json:"-"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	MiningAmount decimal.Decimal `json:"mining_amount"`
	DurationDays int             `json:"duration_days"`
	GB           int             `json:"gb"`
	TopTier      bool            `json:"top_tier,omitempty"`
}

// Catalog is a read-only tier lookup, safe for concurrent use.
type Catalog struct {
	tiers map[string]NodeTier
	order []string
}

// DefaultTiers is the catalog served when no NODE_CATALOG_FILE is configured.
func DefaultTiers() map[string]NodeTier {
	return map[string]NodeTier{
		"node1": {Name: "64 GB Node", Price: decimal.NewFromInt(50), MiningAmount: decimal.NewFromInt(500), DurationDays: 30, GB: 64},
		"node2": {Name: "128 GB Node", Price: decimal.NewFromInt(75), MiningAmount: decimal.NewFromInt(500), DurationDays: 15, GB: 128},
		"node3": {Name: "256 GB Node", Price: decimal.NewFromInt(100), MiningAmount: decimal.NewFromInt(1000), DurationDays: 7, GB: 256},
		"node4": {Name: "1024 GB Node", Price: decimal.NewFromInt(250), MiningAmount: decimal.NewFromInt(1000), DurationDays: 3, GB: 1024, TopTier: true},
	}
}

// NewCatalog validates tiers and freezes them.
func NewCatalog(tiers map[string]NodeTier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, errors.New("catalog has no tiers")
	}

	c := &Catalog{tiers: make(map[string]NodeTier, len(tiers))}
	top := 0
	for id, t := range tiers {
		if id == "" {
			return nil, errors.New("catalog tier with empty id")
		}
		if !t.Price.IsPositive() || !t.MiningAmount.IsPositive() || t.DurationDays <= 0 {
			return nil, errors.Errorf("tier %s: price, mining_amount and duration_days must be positive", id)
		}
		if t.TopTier {
			top++
		}
		t.ID = id
		c.tiers[id] = t
		c.order = append(c.order, id)
	}
	if top != 1 {
		return nil, errors.Errorf("catalog must mark exactly one top tier, got %d", top)
	}
	sort.Strings(c.order)
	return c, nil
}

// LoadCatalog reads a JSON object of tier id -> tier from path, or returns the
// default catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(DefaultTiers())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	var tiers map[string]NodeTier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return nil, errors.Wrapf(err, "parse catalog %s", path)
	}
	return NewCatalog(tiers)
}

// Tier looks up a tier by id.
func (c *Catalog) Tier(id string) (NodeTier, error) {
	t, ok := c.tiers[id]
	if !ok {
		return NodeTier{}, ErrUnknownTier
	}
	return t, nil
}

// Tiers returns all tiers ordered by id.
func (c *Catalog) Tiers() []NodeTier {
	out := make([]NodeTier, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tiers[id])
	}
	return out
}

func (c *Catalog) IsTopTier(id string) bool {
	return c.tiers[id].TopTier
}
