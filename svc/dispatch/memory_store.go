package dispatch

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process store for tests and local runs. It serves
// definitions, quota policies, credentials and media, and records sends.
// The Add and Set methods seed it; nothing in the scheduler calls them.
type MemoryStore struct {
	mu          sync.RWMutex
	definitions []Definition
	policies    map[int64]QuotaPolicy
	credentials map[int64]Credentials
	media       map[int64]Media
	records     []SendRecord
}

// NewMemoryStore returns a store holding copies of defs.
func NewMemoryStore(defs ...Definition) *MemoryStore {
	s := &MemoryStore{
		policies:    make(map[int64]QuotaPolicy),
		credentials: make(map[int64]Credentials),
		media:       make(map[int64]Media),
	}
	for _, d := range defs {
		s.AddDefinition(d)
	}
	return s
}

// AddDefinition stores a copy of d.
func (s *MemoryStore) AddDefinition(d Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions = append(s.definitions, cloneDefinition(d))
}

// SetQuotaPolicy seeds the daily limit for p.OwnerID.
func (s *MemoryStore) SetQuotaPolicy(p QuotaPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.OwnerID] = p
}

// SetCredentials seeds the API settings resolved for ownerID.
func (s *MemoryStore) SetCredentials(ownerID int64, c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[ownerID] = c
}

// AddMedia seeds a media record served by GetMedia.
func (s *MemoryStore) AddMedia(m Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[m.ID] = m
}

func (s *MemoryStore) ListDue(ctx context.Context, day Date, at TimeOfDay) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Definition
	for _, d := range s.definitions {
		if d.Time == at && d.ScheduledOn(day) {
			due = append(due, cloneDefinition(d))
		}
	}
	return due, nil
}

func (s *MemoryStore) CreateSendRecord(ctx context.Context, rec SendRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) CountSentOn(ctx context.Context, ownerID int64, day Date) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.OwnerID == ownerID && DateOf(r.CreatedAt) == day {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetQuotaPolicy(_ context.Context, ownerID int64) (QuotaPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[ownerID]
	if !ok {
		return QuotaPolicy{}, ErrPolicyNotFound
	}
	return p, nil
}

func (s *MemoryStore) ResolveCredentials(_ context.Context, ownerID int64) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[ownerID]
	if !ok {
		return Credentials{}, ErrConfigurationMissing
	}
	return c, nil
}

func (s *MemoryStore) GetMedia(_ context.Context, id int64) (Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return Media{}, ErrMediaNotFound
	}
	return m, nil
}

// Records returns a copy of every recorded send.
func (s *MemoryStore) Records() []SendRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

func cloneDefinition(d Definition) Definition {
	d.Dates = slices.Clone(d.Dates)
	d.Recipients = slices.Clone(d.Recipients)
	if d.Button != nil {
		b := *d.Button
		d.Button = &b
	}
	if d.MediaID != nil {
		id := *d.MediaID
		d.MediaID = &id
	}
	return d
}
