package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestCache(t *testing.T) {
	t.Run("Add and Find", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", []byte("hello"))

		got, ok := c.Find("http://example.com/")
		if !ok {
			t.Fatal("expected to find entry")
		}
		if string(got) != "hello" {
			t.Errorf("got body %q, want %q", got, "hello")
		}
	})

	t.Run("Find non-existent", func(t *testing.T) {
		c := New(1024)
		_, ok := c.Find("http://missing.example/")
		if ok {
			t.Fatal("expected miss for non-existent key")
		}
	})

	t.Run("Find empty url", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", []byte("hello"))
		_, ok := c.Find("")
		if ok {
			t.Fatal("expected miss for empty url")
		}
	})

	t.Run("Add rejects empty url", func(t *testing.T) {
		c := New(1024)
		c.Add("", []byte("hello"))
		if c.Stats().EntryCount != 0 {
			t.Fatal("expected empty-url add to be a no-op")
		}
	})

	t.Run("Add rejects empty body", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", nil)
		if c.Stats().EntryCount != 0 {
			t.Fatal("expected empty-body add to be a no-op")
		}
	})

	t.Run("Add rejects oversize body", func(t *testing.T) {
		c := New(8)
		c.Add("http://example.com/", bytes.Repeat([]byte("x"), 9))
		if c.Stats().EntryCount != 0 {
			t.Fatal("expected oversize add to be a no-op")
		}
		if _, ok := c.Find("http://example.com/"); ok {
			t.Fatal("oversize body must never be retrievable")
		}
	})

	t.Run("Replacement updates body and size", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", []byte("v1"))
		c.Add("http://example.com/", []byte("v2-longer"))

		got, ok := c.Find("http://example.com/")
		if !ok || string(got) != "v2-longer" {
			t.Fatalf("got %q, ok=%v, want %q", got, ok, "v2-longer")
		}
		if c.Stats().TotalBytes != int64(len("v2-longer")) {
			t.Fatalf("total bytes = %d, want %d", c.Stats().TotalBytes, len("v2-longer"))
		}
	})

	t.Run("LRU eviction order", func(t *testing.T) {
		// Capacity for exactly 3 one-byte entries.
		c := New(3)
		c.Add("a", []byte("1"))
		c.Add("b", []byte("2"))
		c.Add("c", []byte("3"))

		c.Add("d", []byte("4")) // evicts "a" (least recently used)

		if _, ok := c.Find("a"); ok {
			t.Error("expected a to be evicted")
		}
		for _, k := range []string{"b", "c", "d"} {
			if _, ok := c.Find(k); !ok {
				t.Errorf("expected %s to still be present", k)
			}
		}
	})

	t.Run("Find before eviction changes LRU order", func(t *testing.T) {
		c := New(3)
		c.Add("a", []byte("1"))
		c.Add("b", []byte("2"))
		c.Add("c", []byte("3"))

		// Touch "a" so it is no longer the LRU candidate.
		c.Find("a")

		c.Add("d", []byte("4")) // should now evict "b"

		if _, ok := c.Find("b"); ok {
			t.Error("expected b to be evicted after a was promoted")
		}
		if _, ok := c.Find("a"); !ok {
			t.Error("expected a to survive, it was promoted by Find")
		}
	})

	t.Run("Multi-eviction makes room for a large entry", func(t *testing.T) {
		c := New(4)
		c.Add("a", []byte("1"))
		c.Add("b", []byte("2"))
		c.Add("c", []byte("3"))
		c.Add("d", []byte("4")) // cache full at 4 bytes

		c.Add("big", []byte("wxyz")) // needs all 4 bytes, must evict a,b,c,d

		for _, k := range []string{"a", "b", "c", "d"} {
			if _, ok := c.Find(k); ok {
				t.Errorf("expected %s to be evicted to make room", k)
			}
		}
		if got, ok := c.Find("big"); !ok || string(got) != "wxyz" {
			t.Fatalf("expected big entry to be present, got %q ok=%v", got, ok)
		}
	})

	t.Run("PurgeURL", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", []byte("hello"))

		if found := c.PurgeURL("http://missing.example/"); found {
			t.Error("expected purge of missing url to report false")
		}
		if found := c.PurgeURL("http://example.com/"); !found {
			t.Error("expected purge of existing url to report true")
		}
		if _, ok := c.Find("http://example.com/"); ok {
			t.Error("expected entry to be gone after purge")
		}
	})

	t.Run("PurgeDomain", func(t *testing.T) {
		c := New(1024)
		c.Add("http://a.example.com/1", []byte("x"))
		c.Add("http://a.example.com/2", []byte("y"))
		c.Add("http://b.example.com/", []byte("z"))
		c.Add("http://other.test/", []byte("w"))

		count := c.PurgeDomain("a.example.com")
		if count != 2 {
			t.Fatalf("purged %d entries, want 2", count)
		}
		if _, ok := c.Find("http://b.example.com/"); !ok {
			t.Error("expected unrelated domain entry to survive")
		}
		if _, ok := c.Find("http://other.test/"); !ok {
			t.Error("expected unrelated entry to survive")
		}
	})

	t.Run("PurgeAll", func(t *testing.T) {
		c := New(1024)
		c.Add("a", []byte("1"))
		c.Add("b", []byte("2"))

		if n := c.PurgeAll(); n != 2 {
			t.Fatalf("purged %d entries, want 2", n)
		}
		if c.Stats().EntryCount != 0 || c.Stats().TotalBytes != 0 {
			t.Fatal("expected cache to be empty after PurgeAll")
		}
	})

	t.Run("Stats tracks hits and misses", func(t *testing.T) {
		c := New(1024)
		c.Add("http://example.com/", []byte("hello"))

		c.Find("http://example.com/")
		c.Find("http://missing.example/")

		stats := c.Stats()
		if stats.Hits != 1 {
			t.Errorf("hits = %d, want 1", stats.Hits)
		}
		if stats.Misses != 1 {
			t.Errorf("misses = %d, want 1", stats.Misses)
		}
	})
}

// TestCacheConcurrency exercises N goroutines performing interleaved
// Add/Find calls and asserts the invariants from the cache's data model
// hold throughout: current byte total never exceeds the budget and never
// goes negative.
func TestCacheConcurrency(t *testing.T) {
	c := New(4096)

	const goroutines = 16
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				key := fmt.Sprintf("http://example.com/%d/%d", id, i%10)
				c.Add(key, []byte(fmt.Sprintf("payload-%d-%d", id, i)))
				c.Find(key)
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.TotalBytes < 0 {
		t.Fatalf("current bytes went negative: %d", stats.TotalBytes)
	}
	if stats.TotalBytes > c.MaxBytes() {
		t.Fatalf("current bytes %d exceeds max %d", stats.TotalBytes, c.MaxBytes())
	}
	if stats.EntryCount != len(c.index) {
		t.Fatalf("entry count %d does not match index size %d", stats.EntryCount, len(c.index))
	}
	if c.order.Len() != len(c.index) {
		t.Fatalf("order length %d does not match index size %d", c.order.Len(), len(c.index))
	}
}
