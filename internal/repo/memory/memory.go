package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/repo"
)

// Store keeps the most recent reports and alert state in process memory.
type Store struct {
	mu      sync.RWMutex
	reports []domain.Report
	keep    int
	alerts  map[string]repo.AlertRecord
}

// New returns a store retaining the last keep reports (at least one).
func New(keep int) *Store {
	if keep < 1 {
		keep = 1
	}
	return &Store{
		reports: make([]domain.Report, 0, keep),
		keep:    keep,
		alerts:  make(map[string]repo.AlertRecord),
	}
}

func (m *Store) Save(ctx context.Context, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Entries = append([]domain.Entry(nil), r.Entries...)
	m.reports = append(m.reports, r)
	if len(m.reports) > m.keep {
		m.reports = m.reports[len(m.reports)-m.keep:]
	}
	return nil
}

func (m *Store) Latest(ctx context.Context) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return nil, nil
	}
	r := m.reports[len(m.reports)-1]
	r.Entries = append([]domain.Entry(nil), r.Entries...)
	return &r, nil
}

// History returns the retained reports, oldest first.
func (m *Store) History(ctx context.Context) ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Report, len(m.reports))
	copy(out, m.reports)
	return out, nil
}

func (m *Store) Get(ctx context.Context, key string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) Set(ctx context.Context, key string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.alerts[key]
	r.Key = key
	ts := sentAt
	r.LastSentAt = &ts
	r.Sent++
	m.alerts[key] = r
	return nil
}

var (
	_ repo.ReportStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)
