package feed_test

import (
	"context"
	"strings"
	"testing"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/adapter/persistence/sqlite"
	"feedwatch/internal/infra/db"
	"feedwatch/internal/usecase/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*feed.Service, *sqlite.Repositories) {
	t.Helper()
	repos, err := sqlite.NewRepositories(context.Background(), sqlite.Config{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return feed.NewService(repos.Feed, db.DecodeFeeds, nil), repos
}

func TestService_Create(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      feed.CreateInput
		wantErr error
	}{
		{name: "valid", in: feed.CreateInput{Name: "Go", URL: "https://go.dev/blog/feed.atom", IntervalMinutes: 60}},
		{name: "duplicate", in: feed.CreateInput{Name: "Go again", URL: "https://go.dev/blog/feed.atom"}, wantErr: feed.ErrDuplicateFeed},
		{name: "missing name", in: feed.CreateInput{URL: "https://example.com/rss"}, wantErr: entity.ErrValidationFailed},
		{name: "bad scheme", in: feed.CreateInput{Name: "x", URL: "ftp://example.com/rss"}, wantErr: entity.ErrValidationFailed},
		{name: "negative interval", in: feed.CreateInput{Name: "x", URL: "https://example.com/rss", IntervalMinutes: -1}, wantErr: entity.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := svc.Create(ctx, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, f.ID)
			assert.True(t, f.Active)
			assert.Equal(t, entity.FeedStatusActive, f.Status)
		})
	}
}

func TestService_Import(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, feed.CreateInput{Name: "Existing", URL: "https://example.com/a.xml"})
	require.NoError(t, err)

	res, err := svc.Import(ctx, strings.NewReader(`
feeds:
  - name: A
    url: https://example.com/a.xml
  - name: B
    url: https://example.com/b.xml
    interval_minutes: 10
  - name: C
    url: https://example.com/c.xml
    inactive: true
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.xml"}, res.Skipped)
	require.Len(t, res.Created, 2)
	assert.Equal(t, 10, res.Created[0].IntervalMinutes)
	assert.False(t, res.Created[1].Active)

	_, err = svc.Import(ctx, strings.NewReader("feeds:\n  - nme: typo\n"))
	assert.Error(t, err)
}

func TestService_PauseResumeDeactivate(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	f, err := svc.Create(ctx, feed.CreateInput{Name: "A", URL: "https://example.com/a.xml"})
	require.NoError(t, err)

	require.NoError(t, svc.Pause(ctx, f.ID))
	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FeedStatusPaused, got.Status)

	for i := 0; i < 4; i++ {
		_, err := repos.Feed.RecordFailure(ctx, f.ID, f.CreatedAt, "HTTP 500")
		require.NoError(t, err)
	}
	require.NoError(t, svc.Deactivate(ctx, f.ID))

	require.NoError(t, svc.Resume(ctx, f.ID))
	got, err = svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FeedStatusActive, got.Status)
	assert.True(t, got.Active)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.Equal(t, 4, got.TotalFailures)

	counts, err := svc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[entity.FeedStatusActive])
}

func TestService_NotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, 42)
	assert.ErrorIs(t, err, feed.ErrFeedNotFound)
	assert.ErrorIs(t, svc.Pause(ctx, 42), feed.ErrFeedNotFound)
	assert.ErrorIs(t, svc.Resume(ctx, 42), feed.ErrFeedNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, 42), feed.ErrFeedNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 42), feed.ErrFeedNotFound)
	_, err = svc.Get(ctx, 0)
	assert.ErrorIs(t, err, entity.ErrValidationFailed)
}
