package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/observability/logging"
	"feedwatch/internal/resilience/circuitbreaker"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	workerPoolTimeout   = 5 * time.Second
	notificationTimeout = 30 * time.Second
)

// Service dispatches feed events to all enabled channels.
type Service interface {
	// NotifyFeedEvent returns immediately; delivery happens in background
	// goroutines and failures are logged, never returned.
	NotifyFeedEvent(ctx context.Context, event *entity.FeedEvent) error

	// GetChannelHealth reports per-channel breaker state.
	GetChannelHealth() []ChannelHealthStatus

	// Shutdown stops accepting work and waits for in-flight deliveries or ctx.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus is the health of one channel.
type ChannelHealthStatus struct {
	Name               string     `json:"name"`
	Enabled            bool       `json:"enabled"`
	CircuitBreakerOpen bool       `json:"circuit_breaker_open"`
	DisabledUntil      *time.Time `json:"disabled_until,omitempty"`
}

// Option customises a Service.
type Option func(*options)

type options struct {
	breakerConfig func(channel string) circuitbreaker.Config
	logger        *slog.Logger
}

// WithBreakerConfig overrides the per-channel breaker configuration.
func WithBreakerConfig(fn func(channel string) circuitbreaker.Config) Option {
	return func(o *options) { o.breakerConfig = fn }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

type channelState struct {
	breaker *circuitbreaker.CircuitBreaker

	mu          sync.Mutex
	openedUntil time.Time
}

type service struct {
	channels   []Channel
	state      map[string]*channelState
	workerPool chan struct{}
	logger     *slog.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewService creates a notification service. maxConcurrent bounds the number
// of deliveries in flight across all channels.
func NewService(channels []Channel, maxConcurrent int, opts ...Option) Service {
	o := options{breakerConfig: circuitbreaker.NotificationChannelConfig, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	svc := &service{
		channels:       channels,
		state:          make(map[string]*channelState, len(channels)),
		workerPool:     make(chan struct{}, maxConcurrent),
		logger:         o.logger,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	enabled := 0
	for _, ch := range channels {
		st := &channelState{}
		cfg := o.breakerConfig(ch.Name())
		name := ch.Name()
		timeout := cfg.Timeout
		prev := cfg.OnStateChange
		cfg.OnStateChange = func(n string, from, to gobreaker.State) {
			st.mu.Lock()
			if to == gobreaker.StateOpen {
				st.openedUntil = time.Now().Add(timeout)
			} else {
				st.openedUntil = time.Time{}
			}
			st.mu.Unlock()
			if to == gobreaker.StateOpen {
				RecordCircuitBreakerOpen(name)
			}
			if prev != nil {
				prev(n, from, to)
			}
		}
		st.breaker = circuitbreaker.New(cfg)
		svc.state[name] = st
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))

	return svc
}

func (s *service) NotifyFeedEvent(ctx context.Context, event *entity.FeedEvent) error {
	if err := validateEvent(event); err != nil {
		s.logger.Warn("Invalid notification input", slog.Any("error", err))
		return nil
	}
	if s.shutdownCtx.Err() != nil {
		for _, ch := range s.channels {
			if ch.IsEnabled() {
				RecordDropped(ch.Name(), "shutdown")
			}
		}
		return nil
	}

	requestID := logging.RunIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	s.logger.Info("Dispatching feed notification",
		slog.String("request_id", requestID),
		slog.String("event", string(event.Kind)),
		slog.Int64("feed_id", event.FeedID))

	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		s.wg.Add(1)
		go s.notifyChannel(requestID, ch, event)
	}
	return nil
}

func (s *service) notifyChannel(requestID string, channel Channel, event *entity.FeedEvent) {
	defer s.wg.Done()

	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in notification channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(workerPoolTimeout):
		s.logger.Warn("Notification dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "pool_full")
		return
	case <-s.shutdownCtx.Done():
		RecordDropped(channel.Name(), "shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(s.shutdownCtx, notificationTimeout)
	defer cancel()
	ctx, _ = logging.WithRunID(ctx, s.logger, requestID)

	st := s.state[channel.Name()]
	start := time.Now()
	RecordDispatch(channel.Name(), string(event.Kind))

	_, err := circuitbreaker.Call(st.breaker, func() (struct{}, error) {
		return struct{}{}, channel.Send(ctx, event)
	})
	duration := time.Since(start)

	switch {
	case circuitbreaker.IsRejected(err):
		s.logger.Warn("Channel temporarily disabled due to circuit breaker",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "circuit_open")
	case err != nil:
		RecordFailure(channel.Name(), duration)
		s.logger.Warn("Channel notification failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Int64("feed_id", event.FeedID),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
	default:
		RecordSuccess(channel.Name(), duration)
		s.logger.Debug("Channel notification sent",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Int64("feed_id", event.FeedID),
			slog.Duration("send_duration", duration))
	}
}

func (s *service) GetChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		st := s.state[ch.Name()]
		status := ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: st.breaker.IsOpen(),
		}
		if status.CircuitBreakerOpen {
			st.mu.Lock()
			until := st.openedUntil
			st.mu.Unlock()
			status.DisabledUntil = &until
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (s *service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down notification service")
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Notification service shutdown timeout")
		return ctx.Err()
	}
}
