// Package catalog holds the static set of purchasable packages. The catalog
// is built once at startup and read-only afterwards.
package catalog

import "fmt"

// KeyLifetime is the package granting unbounded access.
const KeyLifetime = "lifetime"

type Package struct {
	Key         string
	DisplayName string
	// PriceMinorUnits is the price in 分 (1/100 元).
	PriceMinorUnits int64
	// DurationDays is the entitlement window in calendar days; 0 means
	// unlimited (lifetime).
	DurationDays int
}

func (p Package) Unlimited() bool {
	return p.DurationDays == 0
}

// Amount renders the price with exactly two fraction digits, the format the
// gateway expects in total_fee.
func (p Package) Amount() string {
	return fmt.Sprintf("%d.%02d", p.PriceMinorUnits/100, p.PriceMinorUnits%100)
}

type UnknownPackageError struct {
	Key string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("unknown package type: %q", e.Key)
}

type Catalog struct {
	packages map[string]Package
}

func New(packages ...Package) *Catalog {
	m := make(map[string]Package, len(packages))
	for _, p := range packages {
		m[p.Key] = p
	}
	return &Catalog{packages: m}
}

// Default returns the storefront catalog.
func Default() *Catalog {
	return New(
		Package{Key: "daily", DisplayName: "单日套餐", PriceMinorUnits: 300, DurationDays: 1},
		Package{Key: "weekly", DisplayName: "周套餐", PriceMinorUnits: 700, DurationDays: 7},
		Package{Key: "monthly", DisplayName: "月套餐", PriceMinorUnits: 3000, DurationDays: 30},
		Package{Key: KeyLifetime, DisplayName: "终身套餐", PriceMinorUnits: 10000},
	)
}

func (c *Catalog) Get(key string) (Package, error) {
	p, ok := c.packages[key]
	if !ok {
		return Package{}, &UnknownPackageError{Key: key}
	}
	return p, nil
}
