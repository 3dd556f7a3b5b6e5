package schemas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// -- Test Helpers --

// getTestTime provides a fixed, reproducible timestamp for consistent test results.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2026-03-01T12:00:00.123456Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func intPtr(i int) *int { return &i }
