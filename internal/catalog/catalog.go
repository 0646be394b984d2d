package catalog

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"bidsmirror/internal/config"
)

// Unit is one independently versioned upstream dataset.
type Unit struct {
	ID string `yaml:"id"`
	// Label is the branch the unit is published to; empty means the pass default.
	Label string `yaml:"label"`
}

// Source lists the units available upstream.
type Source interface {
	List(ctx context.Context) ([]Unit, error)
}

// NewSource builds the configured catalog source.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Catalog.Source {
	case config.CatalogSourceFile:
		return NewFileSource(cfg.Catalog.File), nil
	case config.CatalogSourceDandi, "":
		return NewDandiSource(cfg.Catalog), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

// Sort orders units ascending by numeric id. Ids that are not numbers sort
// after numeric ones; ties fall back to a lexical comparison.
func Sort(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return Less(units[i].ID, units[j].ID)
	})
}

// Less compares two unit ids numerically when both are integers.
func Less(a, b string) bool {
	na, okA := parseID(a)
	nb, okB := parseID(b)
	switch {
	case okA && okB:
		if c := na.Cmp(nb); c != 0 {
			return c < 0
		}
	case okA != okB:
		return okA
	}
	return a < b
}

func parseID(id string) (*big.Int, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

// Dedupe drops repeated id and label pairs, keeping the first occurrence.
func Dedupe(units []Unit) []Unit {
	seen := make(map[Unit]struct{}, len(units))
	out := units[:0]
	for _, u := range units {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
