package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies an external system a connector integrates with.
// A connector registers under exactly one kind.
type SourceKind string

// Known source kinds.
const (
	SourceLinear   SourceKind = "linear"
	SourceNotion   SourceKind = "notion"
	SourceGitHub   SourceKind = "github"
	SourceMixpanel SourceKind = "mixpanel"
	SourceDatadog  SourceKind = "datadog"
	SourceDocs     SourceKind = "docs"
)

// AllSourceKinds returns every known source kind in stable order.
func AllSourceKinds() []SourceKind {
	return []SourceKind{
		SourceLinear,
		SourceNotion,
		SourceGitHub,
		SourceMixpanel,
		SourceDatadog,
		SourceDocs,
	}
}

// ParseSourceKind parses a string into a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllSourceKinds() {
		if kind == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: source kind %q", ErrUnsupportedType, s)
}

// String returns the kind as a string.
func (k SourceKind) String() string {
	return string(k)
}

// SyncCheckpoint marks the last successfully synced point for one source.
// It is mutated only by the sync runner and persisted durably. A checkpoint
// only advances after all documents up to that point are confirmed indexed.
type SyncCheckpoint struct {
	// Kind is the source this checkpoint belongs to.
	Kind SourceKind

	// LastSynced is the maximum document timestamp confirmed indexed.
	LastSynced time.Time

	// UpdatedAt is when the checkpoint was last committed.
	UpdatedAt time.Time
}
