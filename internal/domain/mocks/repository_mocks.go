package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/V4T54L/leadhook/internal/domain"
)

// MockFormRepository is an in-memory domain.FormRepository for testing.
// It enforces the single-verified-claim rule the same way the database does.
type MockFormRepository struct {
	mu       sync.Mutex
	Forms    []domain.Form
	ListErr  error
	CheckErr error
	PutErr   error
	DelErr   error
	Deletes  int
}

func (m *MockFormRepository) ListByOwner(ctx context.Context, ownerKey string) ([]domain.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.Form
	for _, f := range m.Forms {
		if f.OwnerKey == ownerKey {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClaimedAt.After(out[j].ClaimedAt)
	})
	return out, nil
}

func (m *MockFormRepository) HasVerifiedClaim(ctx context.Context, formID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckErr != nil {
		return false, m.CheckErr
	}
	return m.verifiedLocked(formID), nil
}

func (m *MockFormRepository) InsertIfUnclaimed(ctx context.Context, form domain.Form) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return false, m.PutErr
	}
	if m.verifiedLocked(form.FormID) {
		return false, nil
	}
	form.Verified = false
	m.Forms = append(m.Forms, form)
	return true, nil
}

func (m *MockFormRepository) DeleteByOwner(ctx context.Context, ownerKey string, formID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DelErr != nil {
		return m.DelErr
	}
	m.Deletes++
	kept := m.Forms[:0]
	for _, f := range m.Forms {
		if f.OwnerKey == ownerKey && f.FormID == formID {
			continue
		}
		kept = append(kept, f)
	}
	m.Forms = kept
	return nil
}

func (m *MockFormRepository) Verify(ctx context.Context, ownerKey string, formID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := -1
	for i, f := range m.Forms {
		if f.FormID != formID {
			continue
		}
		if f.Verified {
			if f.OwnerKey == ownerKey {
				return nil
			}
			return domain.ErrAlreadyClaimed
		}
		if f.OwnerKey == ownerKey && (newest < 0 || f.ClaimedAt.After(m.Forms[newest].ClaimedAt)) {
			newest = i
		}
	}
	if newest < 0 {
		return domain.ErrFormNotFound
	}
	m.Forms[newest].Verified = true
	return nil
}

func (m *MockFormRepository) FindCredentials(ctx context.Context, ownerKey string, formID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckErr != nil {
		return nil, m.CheckErr
	}
	var creds []string
	for _, f := range m.Forms {
		if f.OwnerKey == ownerKey && f.FormID == formID {
			creds = append(creds, f.Credential)
		}
	}
	return creds, nil
}

// Snapshot returns a copy of the stored rows.
func (m *MockFormRepository) Snapshot() []domain.Form {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Form(nil), m.Forms...)
}

func (m *MockFormRepository) verifiedLocked(formID int64) bool {
	for _, f := range m.Forms {
		if f.FormID == formID && f.Verified {
			return true
		}
	}
	return false
}

// MockLeadRepository implements both domain.LeadBuffer and domain.LeadSink.
type MockLeadRepository struct {
	mu              sync.Mutex
	BufferedLeads   []domain.Lead
	WrittenLeads    []domain.Lead
	AckedMessageIDs []string
	DLQLeads        []domain.Lead
	ReadBatchResult []domain.Lead
	BufferErr       error
	ReadErr         error
	WriteErr        error
	AckErr          error
	DLQErr          error
	WriteCalls      int
}

func (m *MockLeadRepository) BufferLead(ctx context.Context, lead domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BufferErr != nil {
		return m.BufferErr
	}
	m.BufferedLeads = append(m.BufferedLeads, lead)
	return nil
}

func (m *MockLeadRepository) ReadLeadBatch(ctx context.Context, group, consumer string, count int) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ReadBatchResult, nil
}

func (m *MockLeadRepository) WriteLeadBatch(ctx context.Context, leads []domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.WrittenLeads = append(m.WrittenLeads, leads...)
	return nil
}

func (m *MockLeadRepository) AcknowledgeLeads(ctx context.Context, group string, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedMessageIDs = append(m.AckedMessageIDs, messageIDs...)
	return nil
}

func (m *MockLeadRepository) MoveToDLQ(ctx context.Context, leads []domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DLQErr != nil {
		return m.DLQErr
	}
	m.DLQLeads = append(m.DLQLeads, leads...)
	return nil
}

// MockNotifier records notified leads.
type MockNotifier struct {
	mu        sync.Mutex
	Notified  []domain.Lead
	NotifyErr error
}

func (m *MockNotifier) NotifyLead(ctx context.Context, lead domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, lead)
	return m.NotifyErr
}
