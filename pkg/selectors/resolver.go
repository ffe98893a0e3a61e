package selectors

import (
	"sync"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/dom"
)

// winnerCache remembers the selector that last matched per cache key, so the
// common steady-state lookup is a single query instead of a candidate walk.
type winnerCache struct {
	mu    sync.Mutex
	cache map[string]string // cacheKey -> winning selector
}

func newWinnerCache() *winnerCache {
	return &winnerCache{cache: make(map[string]string)}
}

func (c *winnerCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, ok := c.cache[key]
	return sel, ok
}

func (c *winnerCache) set(key, selector string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = selector
}

func (c *winnerCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

func (c *winnerCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]string)
}

// Resolver finds chat UI elements on a page by trying role candidates in
// order, caching the winning selector per role and invalidating the cache
// entry when it stops matching. A miss is an expected outcome ("not yet
// available"), never an error.
type Resolver struct {
	page  *dom.Page
	mu    sync.RWMutex
	set   Set
	cache *winnerCache
	log   *logrus.Entry
}

// NewResolver creates a Resolver over page with the given validated set.
func NewResolver(page *dom.Page, set Set, log *logrus.Entry) *Resolver {
	return &Resolver{
		page:  page,
		set:   set.Clone(),
		cache: newWinnerCache(),
		log:   log,
	}
}

// Find resolves a role to the first matching element, or nil when nothing
// matches yet.
func (r *Resolver) Find(role Role) *dom.Element {
	r.mu.RLock()
	candidates := r.set[role]
	r.mu.RUnlock()
	return r.FindWith(candidates, string(role))
}

// FindWith tries candidates in order and returns the first match, or nil.
// If cacheKey is non-empty, a previously successful selector is tried first;
// when it no longer matches, the cache entry is cleared and the full list is
// retried in order. Invalid selectors are skipped, not fatal.
func (r *Resolver) FindWith(candidates []string, cacheKey string) *dom.Element {
	if cacheKey != "" {
		if winner, ok := r.cache.get(cacheKey); ok {
			if el := r.tryOne(winner); el != nil {
				return el
			}
			r.log.WithFields(logrus.Fields{"key": cacheKey, "selector": winner}).
				Debug("Cached selector stopped matching, clearing cache entry")
			r.cache.invalidate(cacheKey)
		}
	}

	for _, candidate := range candidates {
		el := r.tryOne(candidate)
		if el == nil {
			continue
		}
		if cacheKey != "" {
			r.cache.set(cacheKey, candidate)
		}
		return el
	}
	return nil
}

func (r *Resolver) tryOne(selector string) *dom.Element {
	el, err := r.page.QueryFirst(selector)
	if err != nil {
		// A selector that fails to parse is skipped, never fatal
		r.log.WithField("selector", selector).Debugf("Skipping unparseable selector: %v", err)
		return nil
	}
	return el
}

// Invalidate clears the cached winner for a role.
func (r *Resolver) Invalidate(role Role) {
	r.cache.invalidate(string(role))
}

// ReplaceSet swaps in a new selector set (e.g. a newer provider version) and
// clears all cached winners.
func (r *Resolver) ReplaceSet(set Set) {
	r.mu.Lock()
	r.set = set.Clone()
	r.mu.Unlock()
	r.cache.clear()
	r.log.Info("Selector set replaced, resolution cache cleared")
}

// Candidates returns the current candidate list for a role.
func (r *Resolver) Candidates(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]string, len(r.set[role]))
	copy(cp, r.set[role])
	return cp
}
