package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/models"
)

// fakeClock is a settable Clock for deterministic transitions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memSessionStore implements SessionStore in memory with the same
// conditional-transition semantics as the SQL store.
type memSessionStore struct {
	mu             sync.Mutex
	sessions       map[uuid.UUID]models.Session
	failTransition map[uuid.UUID]error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions:       make(map[uuid.UUID]models.Session),
		failTransition: make(map[uuid.UUID]error),
	}
}

func (m *memSessionStore) CreateActive(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.Status == models.SessionActive {
			return ErrActiveSessionExists
		}
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessionStore) FindByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		copied := s
		return &copied, nil
	}
	return nil, nil
}

func (m *memSessionStore) FindActiveByUser(_ context.Context, userID uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			copied := s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSessionStore) TransitionFromActive(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failTransition[s.ID]; ok {
		return err
	}
	existing, ok := m.sessions[s.ID]
	if !ok || existing.Status != models.SessionActive {
		return ErrConcurrentModificationLost
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessionStore) FindCompletedByUserInRange(_ context.Context, userID uuid.UUID, start, end time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == models.SessionCompleted && !s.StartTime.Before(start) && s.StartTime.Before(end) {
			out = append(out, s)
		}
	}
	sortByStartDesc(out)
	return out, nil
}

func (m *memSessionStore) FindCompletedByGroupInRange(_ context.Context, groupID uuid.UUID, start, end time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.GroupID != nil && *s.GroupID == groupID && s.Status == models.SessionCompleted && !s.StartTime.Before(start) && s.StartTime.Before(end) {
			out = append(out, s)
		}
	}
	sortByStartDesc(out)
	return out, nil
}

func (m *memSessionStore) FindStaleActive(_ context.Context, before time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.Status == models.SessionActive && !s.StartTime.After(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessionStore) CountCompletedByUserInRange(_ context.Context, userID uuid.UUID, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status.CountsTowardAnalytics() && !s.StartTime.Before(start) && s.StartTime.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *memSessionStore) FindByUserPaged(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sortByStartDesc(out)
	if offset >= len(out) {
		return []models.Session{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSessionStore) get(id uuid.UUID) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memSessionStore) put(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memSessionStore) activeCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			count++
		}
	}
	return count
}

func sortByStartDesc(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

// memUserStore implements UserStore in memory.
type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newMemUserStore(users ...models.User) *memUserStore {
	m := &memUserStore{users: make(map[uuid.UUID]models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUserStore) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, nil
}

func (m *memUserStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUserStore) SaveAnalytics(_ context.Context, userID uuid.UUID, analytics models.UserAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Analytics = analytics
	m.users[userID] = u
	return nil
}

func (m *memUserStore) get(id uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

// memCache implements Cache over JSON blobs, like the Redis cache does.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *memCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	c.sets++
	return nil
}

func (c *memCache) EvictPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newTestUser() models.User {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.User{
		ID:          uuid.New(),
		Email:       "test@studysync.app",
		DisplayName: "Test User",
		Timezone:    "UTC",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }
