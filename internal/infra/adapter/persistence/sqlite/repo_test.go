package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwatch/internal/domain/entity"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewRepositories(context.Background(), Config{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repos.Close()) })
	return repos
}

func createFeed(t *testing.T, repos *Repositories, url string) *entity.Feed {
	t.Helper()
	f := &entity.Feed{Name: "feed " + url, URL: url, Active: true, IntervalMinutes: 15}
	require.NoError(t, repos.Feed.Create(context.Background(), f))
	require.NotZero(t, f.ID)
	return f
}

func TestFeedRepo_Lifecycle(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	f := createFeed(t, repos, "https://example.com/feed.xml")

	got, err := repos.Feed.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed.xml", got.URL)
	assert.Equal(t, entity.FeedStatusActive, got.Status)
	assert.Nil(t, got.LastFetchAt)

	byURL, err := repos.Feed.GetByURL(ctx, f.URL)
	require.NoError(t, err)
	assert.Equal(t, f.ID, byURL.ID)

	missing, err := repos.Feed.Get(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repos.Feed.Create(ctx, &entity.Feed{Name: "dup", URL: f.URL, Active: true})
	assert.ErrorIs(t, err, entity.ErrDuplicate)

	require.NoError(t, repos.Feed.SetActive(ctx, f.ID, false))
	active, err := repos.Feed.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repos.Feed.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repos.Feed.Delete(ctx, f.ID))
	assert.ErrorIs(t, repos.Feed.Delete(ctx, f.ID), entity.ErrNotFound)
}

func TestFeedRepo_Counters(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	f := createFeed(t, repos, "https://example.com/a.xml")

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		counts, err := repos.Feed.RecordFailure(ctx, f.ID, at, "HTTP 403")
		require.NoError(t, err)
		assert.Equal(t, i, counts.Consecutive)
		assert.Equal(t, i, counts.Total)
	}

	require.NoError(t, repos.Feed.RecordSuccess(ctx, f.ID, at.Add(time.Minute), true))
	got, err := repos.Feed.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsecutiveFailures)
	assert.Equal(t, 3, got.TotalFailures)
	assert.True(t, got.RequiresHeavy)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastSuccessAt)
	assert.True(t, got.LastSuccessAt.Equal(at.Add(time.Minute)))

	// heavy flag never flips back
	require.NoError(t, repos.Feed.RecordSuccess(ctx, f.ID, at.Add(2*time.Minute), false))
	got, err = repos.Feed.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresHeavy)

	_, err = repos.Feed.RecordFailure(ctx, 4242, at, "x")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestFeedRepo_StatusAndMetadata(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	f := createFeed(t, repos, "https://example.com/b.xml")

	require.NoError(t, repos.Feed.UpdateStatus(ctx, f.ID, entity.FeedStatusBlocked))
	found := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Feed.UpdateMetadata(ctx, f.ID, entity.FeedMetadata{
		AlternativeURLs: []string{"https://example.com/rss"},
		DiscoveredAt:    &found,
	}))
	_, err := repos.Feed.RecordFailure(ctx, f.ID, found, "x")
	require.NoError(t, err)
	require.NoError(t, repos.Feed.ResetFailures(ctx, f.ID))

	got, err := repos.Feed.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FeedStatusBlocked, got.Status)
	assert.Equal(t, []string{"https://example.com/rss"}, got.Metadata.AlternativeURLs)
	require.NotNil(t, got.Metadata.DiscoveredAt)
	assert.True(t, got.Metadata.DiscoveredAt.Equal(found))
	assert.Equal(t, 0, got.ConsecutiveFailures)
	assert.Equal(t, 1, got.TotalFailures)

	assert.ErrorIs(t, repos.Feed.UpdateStatus(ctx, 777, entity.FeedStatusPaused), entity.ErrNotFound)
}

func TestItemRepo_Identity(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	f := createFeed(t, repos, "https://example.com/c.xml")

	pub := time.Date(2026, 4, 1, 8, 30, 0, 0, time.FixedZone("JST", 9*3600))
	withGUID := &entity.Item{FeedID: f.ID, Title: "A", URL: "https://example.com/a", PublishedAt: pub, ExternalID: "guid-1"}
	require.NoError(t, repos.Item.Create(ctx, withGUID))

	noGUID := &entity.Item{FeedID: f.ID, Title: "B", URL: "https://example.com/b", PublishedAt: pub}
	require.NoError(t, repos.Item.Create(ctx, noGUID))

	got, err := repos.Item.FindByExternalID(ctx, "guid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, withGUID.ID, got.ID)

	got, err = repos.Item.FindByKey(ctx, f.ID, "https://example.com/b", pub)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, noGUID.ID, got.ID)
	assert.Empty(t, got.ExternalID)

	got, err = repos.Item.FindByKey(ctx, f.ID, "https://example.com/b", pub.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, got)

	dup := &entity.Item{FeedID: f.ID, Title: "A again", URL: "https://example.com/other", PublishedAt: pub, ExternalID: "guid-1"}
	assert.ErrorIs(t, repos.Item.Create(ctx, dup), entity.ErrDuplicate)

	withGUID.Summary = "updated"
	withGUID.ExternalID = ""
	require.NoError(t, repos.Item.Update(ctx, withGUID))
	got, err = repos.Item.FindByExternalID(ctx, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Summary, "empty external id must not clear the stored one")

	list, err := repos.Item.ListByFeed(ctx, f.ID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestItemRepo_RetentionOrder(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	f := createFeed(t, repos, "https://example.com/d.xml")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make(map[int]int64)
	for _, day := range []int{5, 1, 3, 2, 4} {
		it := &entity.Item{FeedID: f.ID, Title: fmt.Sprint(day), URL: fmt.Sprintf("https://example.com/%d", day), PublishedAt: base.AddDate(0, 0, day)}
		require.NoError(t, repos.Item.Create(ctx, it))
		ids[day] = it.ID
	}

	n, err := repos.Item.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	oldest, err := repos.Item.ListOldestIDs(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, oldest)

	deleted, err := repos.Item.DeleteByIDs(ctx, oldest)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	n, err = repos.Item.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestHealthLogRepo_RecentNewestFirst(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	f := createFeed(t, repos, "https://example.com/e.xml")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		require.NoError(t, repos.Health.Append(ctx, &entity.HealthLogEntry{
			FeedID:       f.ID,
			AttemptedAt:  base.Add(time.Duration(i) * time.Minute),
			Success:      i%2 == 0,
			StatusCode:   200,
			ResponseTime: time.Duration(i) * time.Millisecond,
			Strategy:     entity.StrategyMinimal,
		}))
	}

	recent, err := repos.Health.Recent(ctx, f.ID, entity.HealthWindow)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.True(t, recent[0].AttemptedAt.Equal(base.Add(11*time.Minute)))
	assert.True(t, recent[9].AttemptedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 11*time.Millisecond, recent[0].ResponseTime)
}

func TestWithLockRetry(t *testing.T) {
	t.Run("retries lock errors", func(t *testing.T) {
		calls := 0
		err := withLockRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := withLockRetry(context.Background(), func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}
