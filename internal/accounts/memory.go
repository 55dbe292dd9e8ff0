package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory implementa Store en memoria.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string // lower(email) -> id
	logins  map[string]string // provider\x00identity -> id
	groups  map[string]map[int64]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		byID:    map[string]*Account{},
		byEmail: map[string]string{},
		logins:  map[string]string{},
		groups:  map[string]map[int64]struct{}{},
	}
}

func loginKey(provider, identity string) string { return provider + "\x00" + identity }

func clone(a *Account) *Account {
	cp := *a
	return &cp
}

func (m *Memory) FindByLogin(_ context.Context, provider, identity string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.logins[loginKey(provider, identity)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *Memory) Create(_ context.Context, acc *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(acc.Email)
	if _, ok := m.byEmail[key]; ok {
		return ErrEmailTaken
	}
	m.byID[acc.ID] = clone(acc)
	m.byEmail[key] = acc.ID
	return nil
}

func (m *Memory) LinkLogin(_ context.Context, accountID, provider, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[accountID]; !ok {
		return ErrNotFound
	}
	m.logins[loginKey(provider, identity)] = accountID
	return nil
}

func (m *Memory) UpdateEmail(_ context.Context, accountID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[accountID]
	if !ok {
		return ErrNotFound
	}
	key := strings.ToLower(email)
	if other, ok := m.byEmail[key]; ok && other != accountID {
		return ErrEmailTaken
	}
	delete(m.byEmail, strings.ToLower(acc.Email))
	acc.Email = email
	m.byEmail[key] = accountID
	return nil
}

func (m *Memory) AttachGroup(_ context.Context, accountID string, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[accountID]; !ok {
		return ErrNotFound
	}
	set, ok := m.groups[accountID]
	if !ok {
		set = map[int64]struct{}{}
		m.groups[accountID] = set
	}
	set[groupID] = struct{}{}
	return nil
}

func (m *Memory) Groups(_ context.Context, accountID string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.groups[accountID]))
	for g := range m.groups[accountID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
