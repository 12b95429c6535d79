package domain

import "context"

// CollectionPolicy overrides retention for one entity type. A nil Enabled
// means archival stays on; only an explicit false switches it off.
type CollectionPolicy struct {
	Enabled         *bool `yaml:"enabled" json:"enabled,omitempty"`
	RetentionMonths int   `yaml:"retention_months" json:"retention_months"`
}

func (p CollectionPolicy) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// GlobalPolicy applies to entity types without their own entry.
type GlobalPolicy struct {
	ArchivalEnabled *bool `yaml:"archival_enabled" json:"archival_enabled,omitempty"`
	ArchivalMonths  int   `yaml:"archival_months" json:"archival_months"`
}

func (p GlobalPolicy) IsEnabled() bool { return p.ArchivalEnabled == nil || *p.ArchivalEnabled }

// RetentionPolicy is the archival section of the application's settings.
type RetentionPolicy struct {
	Collections map[EntityType]CollectionPolicy `yaml:"collections" json:"collections"`
	Global      GlobalPolicy                    `yaml:"global" json:"global"`
}

// Flag returns a pointer to b, for building policies in code.
func Flag(b bool) *bool { return &b }

// PolicySource reads the current retention policy from the configuration store.
type PolicySource interface {
	RetentionPolicy(ctx context.Context) (*RetentionPolicy, error)
}
