package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/farmgate-io/farmgate/store"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		age    time.Duration
		status string
	}{
		{"fresh reading", 0, StatusOnline},
		{"just inside the threshold", 29 * time.Second, StatusOnline},
		{"exactly at the threshold", 30 * time.Second, StatusOnline},
		{"just past the threshold", 31 * time.Second, StatusOffline},
		{"long gone", time.Hour, StatusOffline},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reading := store.Reading{Timestamp: now.Add(-tc.age)}
			result := Evaluate(&reading, now)
			assert.Equal(t, tc.status, result.Status)
			assert.Equal(t, reading.Timestamp.Format(time.RFC3339), result.LastSeen)
		})
	}
}

func TestEvaluateNoReading(t *testing.T) {
	result := Evaluate(nil, time.Now())
	assert.Equal(t, StatusOffline, result.Status)
	assert.Equal(t, "N/A", result.LastSeen)
}
