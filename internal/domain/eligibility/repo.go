package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CheckRecord is the audit row for one eligibility check. The raw 270
// and 271 are kept verbatim for dispute resolution.
type CheckRecord struct {
	ID            uuid.UUID `json:"id"`
	PayerID       string    `json:"payer_id"`
	PayerName     string    `json:"payer_name"`
	PatientFirst  string    `json:"patient_first"`
	PatientLast   string    `json:"patient_last"`
	MemberIDSent  string    `json:"member_id_sent,omitempty"`
	ControlNumber string    `json:"control_number"`
	PayloadID     string    `json:"payload_id"`
	Outcome       string    `json:"outcome"` // enrolled | not_enrolled | format_rejected
	PlanType      string    `json:"plan_type,omitempty"`
	Raw270        string    `json:"-"`
	Raw271        string    `json:"-"`
	WarningsJSON  []byte    `json:"-"`
	CheckedAt     time.Time `json:"checked_at"`
}

// NewCheckRecord flattens a CheckResult into its audit row.
func NewCheckRecord(r *CheckResult, outcome string) *CheckRecord {
	rec := &CheckRecord{
		ID:            r.ID,
		PayerID:       r.PayerID,
		PayerName:     r.PayerName,
		ControlNumber: r.ControlNumber,
		PayloadID:     r.PayloadID,
		Outcome:       outcome,
		PlanType:      r.Plan.PlanType,
		Raw270:        r.Raw270,
		Raw271:        r.Raw271,
		CheckedAt:     r.CheckedAt,
	}
	if r.Response != nil {
		rec.PatientFirst = r.Response.Patient.FirstName
		rec.PatientLast = r.Response.Patient.LastName
		rec.MemberIDSent = r.Response.MemberIDCheck.Sent
		if len(r.Response.Warnings) > 0 {
			rec.WarningsJSON, _ = json.Marshal(r.Response.Warnings)
		}
	}
	return rec
}

// CheckRepository persists check audit rows.
type CheckRepository interface {
	Create(ctx context.Context, rec *CheckRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*CheckRecord, error)
	List(ctx context.Context, payerID string, limit, offset int) ([]*CheckRecord, int, error)
}

// MemoryRepository is a thread-safe in-memory CheckRepository for tests
// and the one-shot CLI commands.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*CheckRecord
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]*CheckRecord)}
}

func (m *MemoryRepository) Create(_ context.Context, rec *CheckRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("eligibility: check %s not found", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRepository) List(_ context.Context, payerID string, limit, offset int) ([]*CheckRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*CheckRecord
	for _, rec := range m.records {
		if payerID != "" && rec.PayerID != payerID {
			continue
		}
		cp := *rec
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckedAt.After(all[j].CheckedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
