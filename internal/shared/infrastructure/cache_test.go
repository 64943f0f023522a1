package infrastructure

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryCache_TTL(t *testing.T) {
	cache := NewInMemoryCache()
	defer cache.Close()

	cache.Set("resto-1:TAI:soja", []string{"Sauce Soja 1l"}, time.Minute)
	cache.Set("resto-1:MET:soja", []string{"Sauce Soja Salee 6x50cl"}, -time.Second)

	if v, ok := cache.Get("resto-1:TAI:soja"); !ok || v.([]string)[0] != "Sauce Soja 1l" {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if _, ok := cache.Get("resto-1:MET:soja"); ok {
		t.Error("expired entry returned")
	}
	if cache.Has("resto-1:MET:soja") || !cache.Has("resto-1:TAI:soja") {
		t.Error("Has disagrees with Get")
	}

	st := cache.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.HitRatio() != 0.5 {
		t.Errorf("hit ratio = %v", st.HitRatio())
	}

	cache.Delete("resto-1:TAI:soja")
	cache.Clear()
	if cache.Stats().Entries != 0 {
		t.Error("Clear left entries")
	}
}

func TestShardedCache_ConcurrentAccess(t *testing.T) {
	cache := NewShardedCache(16)
	defer cache.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := NewCacheKeyBuilder().Add("resto-1").Add("TAI").AddInt(int64(i)).Build()
				if _, ok := cache.Get(key); !ok {
					cache.Set(key, i, time.Minute)
				}
			}
		}()
	}
	wg.Wait()

	st := cache.Stats()
	if st.Entries != 100 {
		t.Errorf("entries = %d, want 100", st.Entries)
	}
	if st.Hits+st.Misses != 800 {
		t.Errorf("accesses = %d, want 800", st.Hits+st.Misses)
	}
	if v, ok := cache.Get("resto-1:TAI:42"); !ok || v.(int) != 42 {
		t.Errorf("Get = %v, %v", v, ok)
	}
}

func TestNewShardedCache_RejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for 12 shards")
		}
	}()
	NewShardedCache(12)
}

func TestCacheStats_NoAccess(t *testing.T) {
	if r := (CacheStats{}).HitRatio(); r != 0 {
		t.Errorf("hit ratio = %v", r)
	}
}

// BenchmarkCache_SearchKeys simule les recherches du rapprochement:
// peu de fournisseurs, beaucoup de termes, 80% de relectures
func BenchmarkCache_SearchKeys(b *testing.B) {
	suppliers := []string{"TAI", "MET", "EUR"}
	keys := make([]string, 0, 300)
	for _, s := range suppliers {
		for i := 0; i < 100; i++ {
			keys = append(keys, NewCacheKeyBuilder().Add("resto-1").Add(s).Add(fmt.Sprintf("terme%d", i)).Build())
		}
	}

	for _, tc := range []struct {
		name  string
		cache Cache
	}{
		{"InMemoryCache", NewInMemoryCache()},
		{"ShardedCache_16", NewShardedCache(16)},
	} {
		b.Run(tc.name, func(b *testing.B) {
			defer tc.cache.Close()
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := keys[i%len(keys)]
					if i%5 == 0 {
						tc.cache.Set(key, i, time.Minute)
					} else {
						_, _ = tc.cache.Get(key)
					}
					i++
				}
			})
		})
	}
}

func BenchmarkCacheKeyBuilder(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = NewCacheKeyBuilder().Add("resto-1").Add("TAI").Add("soja").Build()
	}
}
