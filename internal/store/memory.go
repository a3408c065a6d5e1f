package store

import (
	"context"
	"sort"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// InMemoryStore keeps sessions, leads and dedup records in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	leads    map[string]models.Lead
	inbound  map[string]*DedupRecord
}

var (
	_ Store     = (*InMemoryStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		leads:    make(map[string]models.Lead),
		inbound:  make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, ErrNotFound
	}
	c := sess.Clone()
	return &c, nil
}

func (s *InMemoryStore) SaveSession(ctx context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.PhoneNumber] = sess.Clone()
	return nil
}

func (s *InMemoryStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &lead, nil
}

func (s *InMemoryStore) CreateLead(ctx context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.PhoneNumber]; exists {
		return ErrDuplicateLead
	}
	s.leads[lead.PhoneNumber] = lead
	return nil
}

func (s *InMemoryStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leads := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		leads = append(leads, l)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].CreatedAt.Before(leads[j].CreatedAt) })
	return leads, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
