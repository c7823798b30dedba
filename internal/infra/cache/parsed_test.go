package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/scraper"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, string) error { return nil }

func TestParsedCache_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewParsedCache(NewMemory(MemoryConfig{Now: clock.Now}), 0, nil)
	ctx := context.Background()

	published := time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)
	in := &Parsed{
		Entries: []scraper.Entry{
			{GUID: "g1", Title: "One", Link: "https://example.com/1", Published: &published},
			{Title: "Two", Link: "https://example.com/2"},
		},
		Strategy: entity.StrategyBrowser,
		Heavy:    true,
		CachedAt: clock.Now(),
	}
	c.Set(ctx, "https://example.com/feed", in)

	got, ok := c.Get(ctx, "https://example.com/feed")
	require.True(t, ok)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("cached value mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(DefaultTTL)
	_, ok = c.Get(ctx, "https://example.com/feed")
	assert.False(t, ok)
}

func TestParsedCache_StoreErrorsAreMisses(t *testing.T) {
	c := NewParsedCache(brokenStore{}, time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "u", &Parsed{})
	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
}

func TestParsedCache_UndecodableEntryDropped(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u", []byte("{not json"), time.Minute))

	c := NewParsedCache(store, time.Minute, nil)
	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestParsedCache_Invalidate(t *testing.T) {
	c := NewParsedCache(NewMemory(MemoryConfig{}), time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "u", &Parsed{Strategy: entity.StrategyMinimal})
	c.Invalidate(ctx, "u")
	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
}
