package personalize

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kalambet/enquiro/internal/storage"
)

// Store is the durable boundary for profiles. Implemented by storage.Store.
type Store interface {
	GetProfile(userID string) (storage.ProfileRecord, error)
	UpsertProfile(p storage.ProfileRecord) error
	GetProfileRole(userID string) (string, error)
}

// toRecord flattens a Profile into its JSON-text column form.
func toRecord(userID string, p *Profile) (storage.ProfileRecord, error) {
	tone, err := json.Marshal(p.ToneScore)
	if err != nil {
		return storage.ProfileRecord{}, fmt.Errorf("marshaling tone score: %w", err)
	}
	verbosity, err := json.Marshal(p.VerbosityScore)
	if err != nil {
		return storage.ProfileRecord{}, fmt.Errorf("marshaling verbosity score: %w", err)
	}
	tech, err := json.Marshal(p.TechnologyInterest)
	if err != nil {
		return storage.ProfileRecord{}, fmt.Errorf("marshaling technology interest: %w", err)
	}
	domain, err := json.Marshal(p.DomainInterest)
	if err != nil {
		return storage.ProfileRecord{}, fmt.Errorf("marshaling domain interest: %w", err)
	}
	recent, err := json.Marshal(p.RecentQueries)
	if err != nil {
		return storage.ProfileRecord{}, fmt.Errorf("marshaling recent queries: %w", err)
	}
	return storage.ProfileRecord{
		UserID:             userID,
		Role:               p.Role,
		ToneScore:          string(tone),
		VerbosityScore:     string(verbosity),
		TechnologyInterest: string(tech),
		DomainInterest:     string(domain),
		RecentQueries:      string(recent),
	}, nil
}

// fromRecord rebuilds the in-memory profile from its stored form. A
// malformed column degrades to that field's default rather than failing the
// whole load.
func fromRecord(rec storage.ProfileRecord, defaultRole string) *Profile {
	role := rec.Role
	if role == "" {
		role = defaultRole
	}
	p := NewProfile(role)
	unmarshalColumn(rec.ToneScore, &p.ToneScore, "tone_score")
	unmarshalColumn(rec.VerbosityScore, &p.VerbosityScore, "verbosity_score")
	unmarshalColumn(rec.TechnologyInterest, &p.TechnologyInterest, "technology_interest")
	unmarshalColumn(rec.DomainInterest, &p.DomainInterest, "domain_interest")
	unmarshalColumn(rec.RecentQueries, &p.RecentQueries, "recent_queries")
	return p
}

func unmarshalColumn[T any](raw string, target *T, column string) {
	if raw == "" {
		return
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("malformed profile column, using default", "column", column, "error", err)
		return
	}
	*target = v
}
