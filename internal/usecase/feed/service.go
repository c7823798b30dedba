package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/observability/metrics"
	"feedwatch/internal/repository"
)

// CreateInput represents the input parameters for registering a feed.
type CreateInput struct {
	Name            string
	URL             string
	IntervalMinutes int
	TimeoutSeconds  int
	RequiresHeavy   bool
}

// ImportResult summarizes an Import call.
type ImportResult struct {
	Created []*entity.Feed
	// Skipped lists URLs that were already registered.
	Skipped []string
}

// Decoder parses a feed list; db.DecodeFeeds satisfies it.
type Decoder func(r io.Reader) ([]*entity.Feed, error)

// Service provides feed management use cases.
type Service struct {
	Repo   repository.FeedRepository
	Decode Decoder
	Logger *slog.Logger
}

// NewService returns a Service. logger may be nil.
func NewService(repo repository.FeedRepository, decode Decoder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Repo: repo, Decode: decode, Logger: logger}
}

// List returns every feed, active or not.
func (s *Service) List(ctx context.Context) ([]*entity.Feed, error) {
	feeds, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// Get returns the feed or ErrFeedNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	if id <= 0 {
		return nil, &entity.ValidationError{Field: "id", Message: "must be positive"}
	}
	f, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	if f == nil {
		return nil, ErrFeedNotFound
	}
	return f, nil
}

// Create validates and registers a new active feed.
// Returns ErrDuplicateFeed when the URL is already registered.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Feed, error) {
	f := &entity.Feed{
		Name:            in.Name,
		URL:             in.URL,
		Active:          true,
		Status:          entity.FeedStatusActive,
		IntervalMinutes: in.IntervalMinutes,
		TimeoutSeconds:  in.TimeoutSeconds,
		RequiresHeavy:   in.RequiresHeavy,
	}
	if err := s.create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) create(ctx context.Context, f *entity.Feed) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := s.Repo.Create(ctx, f); err != nil {
		if errors.Is(err, entity.ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrDuplicateFeed, f.URL)
		}
		return fmt.Errorf("create feed: %w", err)
	}
	s.Logger.Info("feed registered",
		slog.Int64("feed_id", f.ID),
		slog.String("feed_url", f.URL),
		slog.Int("interval_minutes", f.IntervalMinutes))
	return nil
}

// Import decodes a feed list from r and registers it with RegisterAll.
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	if s.Decode == nil {
		return nil, errors.New("import: no decoder configured")
	}
	feeds, err := s.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	return s.RegisterAll(ctx, feeds)
}

// RegisterAll registers feeds in order. Already registered URLs are skipped;
// any other error aborts with the feeds created so far kept.
func (s *Service) RegisterAll(ctx context.Context, feeds []*entity.Feed) (*ImportResult, error) {
	res := &ImportResult{}
	for _, f := range feeds {
		err := s.create(ctx, f)
		if errors.Is(err, ErrDuplicateFeed) {
			res.Skipped = append(res.Skipped, f.URL)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("import %q: %w", f.URL, err)
		}
		res.Created = append(res.Created, f)
	}
	return res, nil
}

// Pause stops scheduling the feed until Resume.
func (s *Service) Pause(ctx context.Context, id int64) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.setStatus(ctx, f, entity.FeedStatusPaused)
}

// Resume sets the feed back to active and resets its consecutive failure
// counter. The lifetime counter is kept.
func (s *Service) Resume(ctx context.Context, id int64) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.ResetFailures(ctx, id); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	if !f.Active {
		if err := s.Repo.SetActive(ctx, id, true); err != nil {
			return fmt.Errorf("activate feed: %w", err)
		}
	}
	return s.setStatus(ctx, f, entity.FeedStatusActive)
}

// Deactivate keeps the feed and its items but removes it from scheduling.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.Repo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate feed: %w", err)
	}
	s.Logger.Info("feed deactivated", slog.Int64("feed_id", id))
	return nil
}

// Delete removes the feed together with its items and health log.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return &entity.ValidationError{Field: "id", Message: "must be positive"}
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return ErrFeedNotFound
		}
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

// CountByStatus returns the number of feeds per status and refreshes the
// feeds-by-status gauges.
func (s *Service) CountByStatus(ctx context.Context) (map[entity.FeedStatus]int, error) {
	feeds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[entity.FeedStatus]int)
	for _, f := range feeds {
		counts[f.Status]++
	}
	metrics.UpdateFeedsByStatus(counts)
	return counts, nil
}

func (s *Service) setStatus(ctx context.Context, f *entity.Feed, next entity.FeedStatus) error {
	if f.Status == next {
		return nil
	}
	if err := s.Repo.UpdateStatus(ctx, f.ID, next); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	metrics.RecordStatusTransition(f.Status, next)
	s.Logger.Info("feed status changed manually",
		slog.Int64("feed_id", f.ID),
		slog.String("from", string(f.Status)),
		slog.String("to", string(next)))
	f.Status = next
	return nil
}
