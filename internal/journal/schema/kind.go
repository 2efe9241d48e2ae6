// Package schema provides the record types of the trade journal and their
// document representation.
//
// Each record is a struct of known fields plus an Extra extension map, so
// fields written by other clients survive a read/write cycle. Documents use
// camelCase keys. Price and money quantities are decimal.NullDecimal so an
// absent value and zero stay distinct.
package schema

import "fmt"

// Kind identifies an entity kind.
type Kind string

const (
	KindTrade    Kind = "trade"
	KindAccount  Kind = "account"
	KindStrategy Kind = "strategy"
	KindTag      Kind = "tag"
	KindSettings Kind = "settings"
	KindProfile  Kind = "profile"
)

// CollectionKinds lists the kinds stored as owner-scoped collections.
var CollectionKinds = []Kind{KindTrade, KindAccount, KindStrategy, KindTag}

// Singleton reports whether records of this kind are one document per owner.
func (k Kind) Singleton() bool {
	return k == KindSettings || k == KindProfile
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTrade, KindAccount, KindStrategy, KindTag, KindSettings, KindProfile:
		return true
	}
	return false
}

// ParseKind parses a kind from its name or plural collection name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "trade", "trades":
		return KindTrade, nil
	case "account", "accounts":
		return KindAccount, nil
	case "strategy", "strategies":
		return KindStrategy, nil
	case "tag", "tags":
		return KindTag, nil
	case "settings":
		return KindSettings, nil
	case "profile":
		return KindProfile, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Bookkeeping field names written by the sync layer.
const (
	FieldID         = "id"
	FieldOwner      = "userId"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
	FieldMigratedAt = "migratedAt"
)
