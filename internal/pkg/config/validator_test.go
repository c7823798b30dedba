package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	valid := []string{"*/10 * * * *", "30 5 * * *", "0 9 * * 1-5", "@hourly", "@every 10m"}
	for _, schedule := range valid {
		t.Run(schedule, func(t *testing.T) {
			assert.NoError(t, ValidateCronSchedule(schedule))
		})
	}

	invalid := []string{"", "invalid", "60 * * * *", "* * *", "@every never"}
	for _, schedule := range invalid {
		t.Run("invalid "+schedule, func(t *testing.T) {
			err := ValidateCronSchedule(schedule)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "invalid cron schedule")
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, ValidateTimezone("UTC"))
	assert.NoError(t, ValidateTimezone("Asia/Tokyo"))
	assert.Error(t, ValidateTimezone(""))
	assert.Error(t, ValidateTimezone("Mars/Olympus_Mons"))
}

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		name    string
		value   time.Duration
		min     time.Duration
		max     time.Duration
		wantErr string
	}{
		{"in range", 5 * time.Minute, time.Minute, time.Hour, ""},
		{"at min", time.Minute, time.Minute, time.Hour, ""},
		{"at max", time.Hour, time.Minute, time.Hour, ""},
		{"below", time.Second, time.Minute, time.Hour, "below minimum"},
		{"above", 2 * time.Hour, time.Minute, time.Hour, "exceeds maximum"},
		{"bad range", time.Minute, time.Hour, time.Minute, "invalid range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDuration(tt.value, tt.min, tt.max)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(5, 1, 10))
	assert.NoError(t, ValidateIntRange(1, 1, 1))
	assert.ErrorContains(t, ValidateIntRange(0, 1, 10), "below minimum")
	assert.ErrorContains(t, ValidateIntRange(11, 1, 10), "exceeds maximum")
	assert.ErrorContains(t, ValidateIntRange(5, 10, 1), "invalid range")
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Nanosecond))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateOneOf(t *testing.T) {
	validate := ValidateOneOf("postgres", "sqlite")

	assert.NoError(t, validate("postgres"))
	assert.NoError(t, validate("sqlite"))
	assert.ErrorContains(t, validate("mysql"), "must be one of [postgres, sqlite]")
	assert.Error(t, validate("SQLite"))
}
