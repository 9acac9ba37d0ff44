// Package layoutcache memoizes vertex layout decoding per packing flags value.
package layoutcache

import (
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/Faultbox/gmd-layout/pkg/gmd"
)

// Entry is the outcome of decoding one flags value. Failed decodes are
// cached too, since the same flags always fail the same way.
type Entry struct {
	Layout   *gmd.Layout
	Warnings []gmd.Warning
	Err      error
}

// Cache decodes packing flags and keeps the results.
type Cache struct {
	checked bool
	decode  func(flags uint64, checked bool) (*gmd.Layout, []gmd.Warning, error)

	data     map[uint64]Entry
	inflight map[uint64]*pending
	mu       sync.RWMutex

	// Stats
	hits   int
	misses int
}

// pending is a decode in progress; done is closed once e is set.
type pending struct {
	done chan struct{}
	e    Entry
}

// New creates a cache that decodes in checked or unchecked mode.
func New(checked bool) *Cache {
	return &Cache{
		checked: checked,
		decode:  gmd.DecodeLayout,
		data:     make(map[uint64]Entry),
		inflight: make(map[uint64]*pending),
	}
}

// Checked reports whether the cache verifies bit coverage.
func (c *Cache) Checked() bool {
	return c.checked
}

// Get retrieves a previously decoded entry.
func (c *Cache) Get(flags uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[flags]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// Decode returns the cached entry for flags, decoding it on a miss.
// Concurrent callers missing on the same flags share one decode and only
// the first counts as a miss. The returned error is the entry's decode error.
func (c *Cache) Decode(flags uint64) (Entry, error) {
	c.mu.Lock()
	if e, ok := c.data[flags]; ok {
		c.hits++
		c.mu.Unlock()
		return e, e.Err
	}
	if p, ok := c.inflight[flags]; ok {
		c.hits++
		c.mu.Unlock()
		<-p.done
		return p.e, p.e.Err
	}
	c.misses++
	p := &pending{done: make(chan struct{})}
	c.inflight[flags] = p
	c.mu.Unlock()

	layout, warnings, err := c.decode(flags, c.checked)
	p.e = Entry{Layout: layout, Warnings: warnings, Err: err}

	c.mu.Lock()
	c.data[flags] = p.e
	delete(c.inflight, flags)
	c.mu.Unlock()
	close(p.done)

	return p.e, err
}

// DecodeAll decodes every distinct value in flags using up to workers
// goroutines. All entries, failed ones included, are returned; the error
// combines every decode failure.
func (c *Cache) DecodeAll(flags []uint64, workers int) (map[uint64]Entry, error) {
	distinct := make(map[uint64]struct{}, len(flags))
	for _, f := range flags {
		distinct[f] = struct{}{}
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan uint64)
	results := make(map[uint64]Entry, len(distinct))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				e, _ := c.Decode(f)
				mu.Lock()
				results[f] = e
				mu.Unlock()
			}
		}()
	}
	for f := range distinct {
		jobs <- f
	}
	close(jobs)
	wg.Wait()

	// Deterministic error order.
	keys := make([]uint64, 0, len(results))
	for f := range results {
		keys = append(keys, f)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var err error
	for _, f := range keys {
		err = multierr.Append(err, results[f].Err)
	}
	return results, err
}

// DecodeEach decodes flags with DecodeAll and returns the entries in input
// order, duplicates included.
func (c *Cache) DecodeEach(flags []uint64, workers int) ([]Entry, error) {
	results, err := c.DecodeAll(flags, workers)
	entries := make([]Entry, len(flags))
	for i, f := range flags {
		entries[i] = results[f]
	}
	return entries, err
}

// Len returns the number of cached flags values.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[uint64]Entry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
