// Package deal defines the domain types for deal documents: tiers, record
// kinds, and the filename grammar that carries deal identity and version.
package deal

import (
	"fmt"
	"regexp"
	"strconv"
)

// Tier is one of the three retention stages a deal document lives in.
type Tier int

const (
	TierCurrent Tier = iota
	TierPrevious
	TierArchive
)

// String returns the tier's display name.
func (t Tier) String() string {
	switch t {
	case TierCurrent:
		return "Current"
	case TierPrevious:
		return "Previous"
	case TierArchive:
		return "Archive"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// Kind distinguishes the two record tables extracted from a document.
type Kind int

const (
	KindDetail Kind = iota
	KindBundle
)

// String returns the short name used in cache artifact filenames.
func (k Kind) String() string {
	if k == KindBundle {
		return "bundles"
	}
	return "deals"
}

// Row is one extracted record. All cells are strings: the last three are
// always the DealBase, Version, and Customer trailer columns.
type Row []string

// Document identifies one versioned deal file discovered in a tier.
type Document struct {
	Name    string
	Base    string
	Version int
	Tier    Tier
}

// Key returns the (base, version) identity used for history dedupe.
func (d Document) Key() string {
	return HistoryKey(d.Base, d.Version)
}

// HistoryKey builds the canonical (base, version) key.
func HistoryKey(base string, version int) string {
	return base + "_v" + strconv.Itoa(version)
}

// nameRe matches deal document names: the fixed prefix, a digit deal base,
// a version marker, optional free text, and the .xlsx suffix. Matching is
// case-insensitive; anything else is simply not a deal document.
var nameRe = regexp.MustCompile(`(?i)^translate_quote_(\d+)_v(\d+)(?:_[^.]*)?\.xlsx$`)

// ParseName extracts the deal base and version from a document name.
// A false return means the name is not a deal document, which callers
// must treat as a skip, not an error.
func ParseName(name string) (base string, version int, ok bool) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil || v < 1 {
		return "", 0, false
	}
	return m[1], v, true
}
