package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	cache := New[string](time.Minute)
	assert.NotNil(t, cache)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_SetAndGet(t *testing.T) {
	cache := New[string](10 * time.Second)

	cache.Set("key1", "value1")
	val, exists := cache.Get("key1")
	assert.True(t, exists)
	assert.Equal(t, "value1", val)

	val, exists = cache.Get("nonexistent")
	assert.False(t, exists)
	assert.Empty(t, val)
}

func TestCache_StructValues(t *testing.T) {
	type settings struct {
		Tone      string
		Fallbacks []string
	}
	cache := New[settings](10 * time.Second)

	cache.Set("tenant-1", settings{Tone: "friendly", Fallbacks: []string{"gemini"}})
	val, exists := cache.Get("tenant-1")
	assert.True(t, exists)
	assert.Equal(t, "friendly", val.Tone)
	assert.Equal(t, []string{"gemini"}, val.Fallbacks)
}

func TestCache_Expiration(t *testing.T) {
	cache := New[int](time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("key", 42)
	val, exists := cache.Get("key")
	assert.True(t, exists)
	assert.Equal(t, 42, val)

	now = now.Add(2 * time.Minute)
	_, exists = cache.Get("key")
	assert.False(t, exists)
	assert.Equal(t, 0, cache.Len(), "expired entry is evicted on read")
}

func TestCache_UpdateValue(t *testing.T) {
	cache := New[string](10 * time.Second)

	cache.Set("key", "value1")
	cache.Set("key", "value2")

	val, exists := cache.Get("key")
	assert.True(t, exists)
	assert.Equal(t, "value2", val)
}

func TestCache_Delete(t *testing.T) {
	cache := New[string](10 * time.Second)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	cache.Delete("key1")

	_, exists := cache.Get("key1")
	assert.False(t, exists)
	_, exists = cache.Get("key2")
	assert.True(t, exists)

	// deleting a missing key is a no-op
	cache.Delete("nonexistent")
}

func TestCache_Clear(t *testing.T) {
	cache := New[int](10 * time.Second)
	for i := 0; i < 10; i++ {
		cache.Set(fmt.Sprintf("key%d", i), i)
	}

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	_, exists := cache.Get("key1")
	assert.False(t, exists)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New[int](10 * time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key_%d_%d", id, j)
				cache.Set(key, j)
				if v, ok := cache.Get(key); ok {
					assert.Equal(t, j, v)
				}
				if j%10 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 900, cache.Len())
}

func BenchmarkCache_Get(b *testing.B) {
	cache := New[string](time.Minute)
	cache.Set("key", "value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("key")
	}
}
