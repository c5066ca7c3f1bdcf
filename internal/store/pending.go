// Package store holds the in-memory record of external_status evaluations
// waiting on other checks to finish. Entries are an advisory cache: losing
// them (a restart, an eviction) only delays resolution until the next
// fallback evaluation, because truth is always re-derived from the API.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mergegate/internal/pull"
)

// PendingEvaluation describes one parked external_status check.
type PendingEvaluation struct {
	Repo           pull.Repo
	PRNumber       int
	HeadSHA        string
	BaseRef        string
	RuleName       string
	RequiredChecks []string
	// CheckRunID is the remote in-progress record to finalize on resolution.
	CheckRunID int64
	CreatedAt  time.Time
	Timeout    time.Duration
}

// Key is the store key for this evaluation.
func (p PendingEvaluation) Key() string {
	return Key(p.Repo, p.HeadSHA, p.RuleName)
}

// Expired reports whether the wait has outlived its timeout.
func (p PendingEvaluation) Expired(now time.Time) bool {
	return now.After(p.CreatedAt.Add(p.Timeout))
}

// Requires reports whether name is one of the checks this evaluation waits on.
func (p PendingEvaluation) Requires(name string) bool {
	for _, c := range p.RequiredChecks {
		if c == name {
			return true
		}
	}
	return false
}

// Key builds the (repository, commit, rule) store key.
func Key(repo pull.Repo, headSHA, rule string) string {
	return Prefix(repo, headSHA) + rule
}

// Prefix selects every rule parked on one commit.
func Prefix(repo pull.Repo, headSHA string) string {
	return repo.String() + "@" + headSHA + "#"
}

// PendingStore is the injectable interface over the shared map, so tests can
// substitute an isolated instance. Writers are last-writer-wins; readers must
// re-verify remote state before acting on an entry's content.
type PendingStore interface {
	Get(key string) (PendingEvaluation, bool)
	Set(p PendingEvaluation)
	Delete(key string)
	ListPrefix(prefix string) []PendingEvaluation
}

// MemoryStore is the process-wide PendingStore implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]PendingEvaluation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]PendingEvaluation)}
}

func (s *MemoryStore) Get(key string) (PendingEvaluation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entries[key]
	return p, ok
}

func (s *MemoryStore) Set(p PendingEvaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.Key()] = p
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// ListPrefix returns every entry whose key starts with prefix, ordered by key
// for deterministic processing.
func (s *MemoryStore) ListPrefix(prefix string) []PendingEvaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PendingEvaluation
	for k, p := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
