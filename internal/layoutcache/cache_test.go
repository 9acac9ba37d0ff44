package layoutcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/Faultbox/gmd-layout/pkg/gmd"
)

var errBadFlags = errors.New("bad flags")

// countingCache wraps the real decoder, failing for flags with bit 63 set.
func countingCache(calls *int64) *Cache {
	c := New(true)
	c.decode = func(flags uint64, checked bool) (*gmd.Layout, []gmd.Warning, error) {
		atomic.AddInt64(calls, 1)
		if flags>>63 == 1 {
			return nil, nil, errBadFlags
		}
		return gmd.DecodeLayout(flags, checked)
	}
	return c
}

func TestCache_DecodeMemoizes(t *testing.T) {
	var calls int64
	c := countingCache(&calls)

	first, err := c.Decode(0x2000_0000)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	second, err := c.Decode(0x2000_0000)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 decode, got %d", calls)
	}
	if first.Layout != second.Layout {
		t.Error("expected the cached layout to be returned")
	}
	if len(first.Warnings) != 1 || first.Warnings[0].Kind != gmd.WarnUVsDisabled {
		t.Errorf("expected uvs-disabled warning, got %v", first.Warnings)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestCache_CachesFailures(t *testing.T) {
	var calls int64
	c := countingCache(&calls)

	for i := 0; i < 3; i++ {
		if _, err := c.Decode(1 << 63); !errors.Is(err, errBadFlags) {
			t.Fatalf("expected errBadFlags, got %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 decode, got %d", calls)
	}
}

func TestCache_Unchecked(t *testing.T) {
	c := New(false)
	if c.Checked() {
		t.Error("expected unchecked cache")
	}

	e, err := c.Decode(0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if e.Layout.Pos != (gmd.ComponentStorage{Format: gmd.Float32, Count: 4}) {
		t.Errorf("unexpected position storage %s", e.Layout.Pos)
	}
}

func TestCache_DecodeAll(t *testing.T) {
	var calls int64
	c := countingCache(&calls)

	flags := []uint64{0, 0x400, 0, 1 << 63, 0x400, 1<<63 | 1, 0x2000}
	results, err := c.DecodeAll(flags, 3)

	if len(results) != 5 {
		t.Errorf("expected 5 distinct results, got %d", len(results))
	}
	if calls != 5 {
		t.Errorf("expected 5 decodes, got %d", calls)
	}
	if errs := multierr.Errors(err); len(errs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(errs), err)
	}
	if results[0x400].Layout == nil || results[0x400].Layout.Normal == nil {
		t.Error("expected normal attribute for 0x400")
	}
	if results[1<<63].Err == nil {
		t.Error("expected failure entry for bit 63")
	}
	if c.Len() != 5 {
		t.Errorf("expected 5 cached entries, got %d", c.Len())
	}
}

func TestCache_DecodeAllZeroWorkers(t *testing.T) {
	c := New(true)
	results, err := c.DecodeAll([]uint64{1, 2, 3}, 0)
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestCache_ConcurrentDecode(t *testing.T) {
	c := New(true)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := c.Decode(uint64(i%17) << 4); err != nil {
					t.Errorf("Decode failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() != 17 {
		t.Errorf("expected 17 entries, got %d", c.Len())
	}
}

func TestCache_ConcurrentMissDecodesOnce(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	c := New(true)
	c.decode = func(flags uint64, checked bool) (*gmd.Layout, []gmd.Warning, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return gmd.DecodeLayout(flags, checked)
	}

	const callers = 8
	entries := make([]Entry, callers)
	var wg sync.WaitGroup
	for g := 0; g < callers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			entries[g], _ = c.Decode(0x400)
		}(g)
	}

	// Every caller has been counted once it is either decoding or waiting.
	deadline := time.Now().Add(5 * time.Second)
	for {
		hits, misses := c.Stats()
		if hits+misses == callers {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("callers did not arrive, got %d/%d", hits, misses)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected 1 decode, got %d", calls)
	}
	if hits, misses := c.Stats(); hits != callers-1 || misses != 1 {
		t.Errorf("expected %d hits and 1 miss, got %d/%d", callers-1, hits, misses)
	}
	for g, e := range entries {
		if e.Layout != entries[0].Layout {
			t.Errorf("caller %d: expected the shared layout", g)
		}
	}
}

func TestCache_DecodeEach(t *testing.T) {
	var calls int64
	c := countingCache(&calls)

	flags := []uint64{0x400, 0, 1 << 63, 0x400}
	entries, err := c.DecodeEach(flags, 4)

	if len(entries) != len(flags) {
		t.Fatalf("expected %d entries, got %d", len(flags), len(entries))
	}
	if calls != 3 {
		t.Errorf("expected 3 decodes, got %d", calls)
	}
	if errs := multierr.Errors(err); len(errs) != 1 {
		t.Errorf("expected 1 error, got %v", err)
	}
	if entries[0].Layout == nil || entries[0].Layout.Normal == nil {
		t.Error("expected normal attribute for the first entry")
	}
	if entries[1].Layout == nil || entries[1].Layout.Normal != nil {
		t.Error("expected plain layout for the second entry")
	}
	if !errors.Is(entries[2].Err, errBadFlags) {
		t.Errorf("expected errBadFlags for the third entry, got %v", entries[2].Err)
	}
	if entries[3].Layout != entries[0].Layout {
		t.Error("expected duplicate flags to share an entry")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(true)
	c.Decode(0)
	c.Decode(0)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Errorf("expected reset stats, got %d/%d", hits, misses)
	}
}
