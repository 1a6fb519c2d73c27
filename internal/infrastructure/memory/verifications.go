package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/pkg/id"
)

// VerificationRepo is a process-local record store used for development and
// tests. A single mutex serialises every mutation, which gives the same
// at-most-one-transition guarantee as the conditional DynamoDB write.
type VerificationRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.VerificationRecord
	byEmail map[string]string
}

func NewVerificationRepo() *VerificationRepo {
	return &VerificationRepo{
		byID:    make(map[string]*domain.VerificationRecord),
		byEmail: make(map[string]string),
	}
}

func (r *VerificationRepo) GetOrCreate(_ context.Context, email string, now time.Time) (*domain.VerificationRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if recID, ok := r.byEmail[email]; ok {
		rec := *r.byID[recID]
		return &rec, false, nil
	}
	rec := &domain.VerificationRecord{
		ID:              id.New(),
		Email:           email,
		LastRequestedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.byID[rec.ID] = rec
	r.byEmail[email] = rec.ID
	out := *rec
	return &out, true, nil
}

func (r *VerificationRepo) Get(_ context.Context, recordID string) (*domain.VerificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return nil, fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	out := *rec
	return &out, nil
}

func (r *VerificationRepo) MarkVerified(_ context.Context, recordID string, now time.Time) (domain.MarkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return 0, fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	if rec.Verified {
		return domain.MarkAlreadyVerified, nil
	}
	rec.Verified = true
	rec.UpdatedAt = now
	return domain.MarkVerified, nil
}

func (r *VerificationRepo) MarkRequested(_ context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recordID]
	if !ok {
		return fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	rec.LastRequestedAt = at
	rec.UpdatedAt = at
	return nil
}

// Count returns the number of stored records.
func (r *VerificationRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
