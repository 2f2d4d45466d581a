// Package payer holds the immutable payer profiles that drive per-payer
// EDI variation. Profiles are looked up by clearinghouse payer ID and
// never mutated by the eligibility pipeline.
package payer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category buckets payers for benefit interpretation.
type Category string

const (
	CategoryMedicaid            Category = "medicaid"
	CategoryMedicaidManagedCare Category = "medicaid-managed-care"
	CategoryCommercial          Category = "commercial"
	CategoryOther               Category = "other"
)

// Profile describes one payer's identity and EDI capabilities.
type Profile struct {
	ID       string   `json:"id"` // clearinghouse-specific payer ID
	Name     string   `json:"name"`
	Category Category `json:"category"`

	// AllowsNameOnly permits inquiries with neither DOB nor member ID.
	AllowsNameOnly bool `json:"allows_name_only"`
	// SupportsMemberID emits the MI qualifier pair in the subscriber NM1.
	SupportsMemberID bool `json:"supports_member_id"`
	// RequiresGender emits DMG03 when the gender is M or F.
	RequiresGender bool `json:"requires_gender"`
	// RejectsServiceDate suppresses the request DTP segment: some state
	// Medicaid payers reject any DTP in a 270 and convey the coverage
	// period only in the 271.
	RejectsServiceDate bool `json:"rejects_service_date"`
	// ServiceDateRange selects RD8 over D8 when a DTP is emitted.
	ServiceDateRange bool `json:"service_date_range"`
	// ServiceTypeCodes are the EQ inquiries to batch into one
	// round-trip; empty means the generic "30".
	ServiceTypeCodes []string `json:"service_type_codes,omitempty"`
}

// ErrNotFound reports an unknown payer ID.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("payer: unknown payer ID %q", e.ID) }

// ProfileLookup resolves payer profiles. Injected into the eligibility
// service so the pipeline is testable with fixture profiles.
type ProfileLookup interface {
	Profile(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
}

// Registry is a concurrency-safe in-memory ProfileLookup.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry builds a registry from the given profiles.
func NewRegistry(profiles ...*Profile) *Registry {
	r := &Registry{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[strings.ToUpper(p.ID)] = p
	}
	return r
}

// Profile implements ProfileLookup.
func (r *Registry) Profile(_ context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	cp := *p
	return &cp, nil
}

// List implements ProfileLookup, sorted by display name.
func (r *Registry) List(_ context.Context) ([]*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Register adds or replaces a profile.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[strings.ToUpper(p.ID)] = p
}

// BuiltinProfiles returns the payers this deployment talks to out of
// the box. A pg-backed store can extend or replace these.
func BuiltinProfiles() []*Profile {
	return []*Profile{
		{
			ID:                 "UTMCD",
			Name:               "Utah Medicaid",
			Category:           CategoryMedicaid,
			SupportsMemberID:   true,
			RejectsServiceDate: true,
			ServiceTypeCodes:   []string{"30", "MH"},
		},
		{
			ID:               "SX107",
			Name:             "Healthy U Medicaid (University of Utah Health Plans)",
			Category:         CategoryMedicaidManagedCare,
			SupportsMemberID: true,
			RequiresGender:   true,
			ServiceTypeCodes: []string{"30", "A8", "MH"},
		},
		{
			ID:               "SX155",
			Name:             "Molina Healthcare of Utah",
			Category:         CategoryMedicaidManagedCare,
			SupportsMemberID: true,
			RequiresGender:   true,
			ServiceTypeCodes: []string{"30", "A8"},
		},
		{
			ID:               "87726",
			Name:             "UnitedHealthcare",
			Category:         CategoryCommercial,
			AllowsNameOnly:   false,
			SupportsMemberID: true,
			RequiresGender:   true,
			ServiceDateRange: true,
			ServiceTypeCodes: []string{"30", "98", "A8"},
		},
		{
			ID:               "60054",
			Name:             "Aetna",
			Category:         CategoryCommercial,
			SupportsMemberID: true,
			RequiresGender:   true,
			ServiceTypeCodes: []string{"30", "98"},
		},
		{
			ID:               "SX062",
			Name:             "SelectHealth",
			Category:         CategoryCommercial,
			SupportsMemberID: true,
			RequiresGender:   true,
			ServiceTypeCodes: []string{"30", "98", "A8"},
		},
	}
}
