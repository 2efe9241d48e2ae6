// Package paths maps owners and record kinds to document store paths.
//
// Every path starts with owner/{ownerId}, so records of different owners
// never share a collection.
package paths

import (
	"fmt"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// SingletonID is the document id of the settings and profile singletons.
const SingletonID = "default"

// CollectionName returns the collection name for kind.
func CollectionName(kind schema.Kind) string {
	switch kind {
	case schema.KindTrade:
		return "trades"
	case schema.KindAccount:
		return "accounts"
	case schema.KindStrategy:
		return "strategies"
	case schema.KindTag:
		return "tags"
	case schema.KindSettings:
		return "settings"
	case schema.KindProfile:
		return "profile"
	}
	panic(fmt.Sprintf("paths: unknown kind %q", kind))
}

// Owner returns the root path of an owner's data.
func Owner(ownerID string) string {
	return docstore.Join("owner", ownerID)
}

// Collection returns the path of an owner's collection of kind.
func Collection(ownerID string, kind schema.Kind) string {
	return docstore.Join("owner", ownerID, CollectionName(kind))
}

// Doc returns the path of one record.
func Doc(ownerID string, kind schema.Kind, id string) string {
	return docstore.Join(Collection(ownerID, kind), id)
}

// Singleton returns the path of the settings or profile document of an owner.
func Singleton(ownerID string, kind schema.Kind) string {
	if !kind.Singleton() {
		panic(fmt.Sprintf("paths: %q is not a singleton kind", kind))
	}
	return Doc(ownerID, kind, SingletonID)
}
