// Package storage defines the tiered deal-repository abstraction.
package storage

import "github.com/starford/dealsync/internal/deal"

// Provider is the interface for tier file operations.
type Provider interface {
	// List returns the spreadsheet document names present in a tier,
	// sorted, excluding office lock files.
	List(t deal.Tier) ([]string, error)
	// Path returns the absolute path of a document in a tier.
	Path(t deal.Tier, name string) string
	// Move relocates a document between tiers. An existing file at the
	// destination is replaced, never duplicated.
	Move(name string, from, to deal.Tier) error
	// Delete removes a document from a tier.
	Delete(t deal.Tier, name string) error
}
