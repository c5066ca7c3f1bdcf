package policy

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"mergegate/internal/cache"
	"mergegate/internal/pull"
)

// DefaultPath is where the configuration document lives in a repository.
const DefaultPath = ".github/mergegate.yml"

// LoadState classifies the outcome of a document load.
type LoadState int

const (
	// StateLoaded means the document parsed and validated; Document is set.
	StateLoaded LoadState = iota
	// StateMissing means the repository has no document at the configured path.
	StateMissing
	// StateInvalid means the document exists but failed parsing or validation;
	// Errors lists every violation.
	StateInvalid
)

// LoadResult is the three-way outcome surfaced to the evaluation engine.
type LoadResult struct {
	State    LoadState
	Document *Document
	Errors   []string
}

// ContentsFetcher fetches one file from a repository at a ref. The boolean is
// false when the file does not exist; errors are reserved for transport
// failures.
type ContentsFetcher interface {
	FileContent(ctx context.Context, repo pull.Repo, path, ref string) (string, bool, error)
}

// Loader loads, parses, and validates configuration documents, memoizing
// results per (repo, ref) for a short window and deduplicating concurrent
// identical loads.
type Loader struct {
	contents ContentsFetcher
	path     string
	cache    *cache.Cache[LoadResult]
	flight   singleflight.Group
}

func NewLoader(contents ContentsFetcher, path string, ttl time.Duration) *Loader {
	if path == "" {
		path = DefaultPath
	}
	return &Loader{
		contents: contents,
		path:     path,
		cache:    cache.New[LoadResult](ttl),
	}
}

// Load returns the document outcome for repo at ref. Transport failures are
// returned as errors and are never cached; the three document outcomes are.
func (l *Loader) Load(ctx context.Context, repo pull.Repo, ref string) (LoadResult, error) {
	key := repo.String() + "@" + ref

	if res, ok := l.cache.Get(key); ok {
		return res, nil
	}

	v, err, _ := l.flight.Do(key, func() (any, error) {
		raw, found, err := l.contents.FileContent(ctx, repo, l.path, ref)
		if err != nil {
			return LoadResult{}, fmt.Errorf("load policy %s@%s: %w", repo, ref, err)
		}
		if !found {
			res := LoadResult{State: StateMissing}
			l.cache.Set(key, res)
			return res, nil
		}

		res := Parse([]byte(raw))
		l.cache.Set(key, res)
		return res, nil
	})
	if err != nil {
		return LoadResult{}, err
	}
	return v.(LoadResult), nil
}

// Parse decodes and validates a raw document. Unknown fields are schema
// violations, so typos in rule parameters surface instead of silently
// disabling a rule.
func Parse(raw []byte) LoadResult {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return LoadResult{
			State:  StateInvalid,
			Errors: []string{"parse: " + strings.TrimSpace(err.Error())},
		}
	}

	if errs := Validate(&doc); len(errs) > 0 {
		return LoadResult{State: StateInvalid, Errors: errs}
	}
	return LoadResult{State: StateLoaded, Document: &doc}
}
