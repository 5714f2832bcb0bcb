package types

import "time"

// CatalogEntry is one row of the model catalog.
type CatalogEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	IsActive    bool   `json:"isActive"`
	IsDefault   bool   `json:"isDefault"`
}

// FeatureFlags are the static switches that shape the toolset.
type FeatureFlags struct {
	VoiceEnabled   bool `json:"voiceEnabled"`
	ImagesEnabled  bool `json:"imagesEnabled"`
	OrdersEnabled  bool `json:"ordersEnabled"`
	WebsiteEnabled bool `json:"websiteEnabled"`
	MemoryEnabled  bool `json:"memoryEnabled"`
}

// DefaultFeatureFlags is used when the settings store has no flags row or
// cannot be read.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{MemoryEnabled: true}
}

// MemoryFact is a persisted statement about a user.
type MemoryFact struct {
	Content    string    `json:"content"`
	Importance int       `json:"importance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Order is a purchase request routed on the user's behalf.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Product   string    `json:"product"`
	Quantity  int       `json:"quantity"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
