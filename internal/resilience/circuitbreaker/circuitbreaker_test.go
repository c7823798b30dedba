package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:             "test-circuit",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

func TestNew(t *testing.T) {
	cb := New(testConfig())
	assert.Equal(t, "test-circuit", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestCall_Success(t *testing.T) {
	cb := New(testConfig())
	got, err := Call(cb, func() (string, error) { return "<rss/>", nil })
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", got)
}

func TestCall_TripsAfterFailureRatio(t *testing.T) {
	var transitions []gobreaker.State
	cfg := testConfig()
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	cb := New(cfg)

	boom := errors.New("render failed")
	for i := 0; i < 3; i++ {
		_, err := Call(cb, func() (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.True(t, cb.IsOpen())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	called := false
	_, err := Call(cb, func() (string, error) {
		called = true
		return "x", nil
	})
	assert.False(t, called)
	assert.True(t, IsRejected(err))
}

func TestCall_BelowMinRequestsStaysClosed(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 2; i++ {
		_, _ = Call(cb, func() (int, error) { return 0, errors.New("x") })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestExecute(t *testing.T) {
	cb := New(DefaultConfig("exec"))
	res, err := cb.Execute(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(gobreaker.ErrOpenState))
	assert.True(t, IsRejected(gobreaker.ErrTooManyRequests))
	assert.False(t, IsRejected(errors.New("other")))
	assert.False(t, IsRejected(nil))
}

func TestHeavyFetchConfig(t *testing.T) {
	cfg := HeavyFetchConfig()
	assert.Equal(t, "heavy-fetch", cfg.Name)
	assert.Greater(t, cfg.MinRequests, uint32(0))
}

func TestConsecutiveFailuresTrip(t *testing.T) {
	cfg := NotificationChannelConfig("slack")
	var opened bool
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			opened = true
		}
	}
	cb := New(cfg)
	assert.Equal(t, "notify-slack", cb.Name())

	fail := func() (int, error) { return 0, errors.New("boom") }
	for i := 0; i < 4; i++ {
		_, _ = Call(cb, fail)
	}
	_, _ = Call(cb, func() (int, error) { return 1, nil })
	for i := 0; i < 4; i++ {
		_, _ = Call(cb, fail)
	}
	assert.False(t, cb.IsOpen(), "success resets the run")

	_, _ = Call(cb, fail)
	assert.True(t, cb.IsOpen())
	assert.True(t, opened)
}
