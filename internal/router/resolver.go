// Package router picks the model that serves a request and the backend that
// serves the model.
package router

import (
	"strings"

	"github.com/af-corp/aegis-chat/internal/types"
)

// LastResortModel is used when the catalog is empty or has nothing active and
// no fallback is configured.
const LastResortModel = "openai/gpt-4o-mini"

// Family is a backend family.
type Family string

const (
	FamilyAggregator Family = "aggregator"
	FamilyLocal      Family = "local"
)

// FamilyFor routes a model id to its backend family. Ids containing a path
// separator ("vendor/model") belong to the cloud aggregator; everything else
// ("llama3.1:8b") is served by the local endpoint. Changing this rule changes
// which backend serves which model.
func FamilyFor(modelID string) Family {
	if strings.Contains(modelID, "/") {
		return FamilyAggregator
	}
	return FamilyLocal
}

// Resolve picks the model id for a request. In order: the requested id when it
// is in the catalog and active, the active default entry, the first active
// entry, the configured fallback, LastResortModel. It always returns an id.
func Resolve(requestedID string, catalog []types.CatalogEntry, fallback string) string {
	if requestedID != "" {
		for _, e := range catalog {
			if e.ID == requestedID && e.IsActive {
				return e.ID
			}
		}
	}
	for _, e := range catalog {
		if e.IsDefault && e.IsActive && e.ID != "" {
			return e.ID
		}
	}
	for _, e := range catalog {
		if e.IsActive && e.ID != "" {
			return e.ID
		}
	}
	if fallback != "" {
		return fallback
	}
	return LastResortModel
}
