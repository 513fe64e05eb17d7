package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/apkforge/internal/logging"
)

func instantProbes(lookup func(string) (string, bool)) []Probe {
	probes := DefaultProbes(lookup)
	for i := range probes {
		probes[i].Delay = 0
	}
	return probes
}

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.Message
	}
	return out
}

func TestEnvironmentCheckPasses(t *testing.T) {
	check := EnvironmentCheck{
		Logger: logging.Discard(),
		Clock:  newManualClock(),
		Probes: instantProbes(func(string) (string, bool) { return "/opt/android-sdk", true }),
	}

	report, err := check.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, []string{
		"Starting environment check...",
		"Checking Node.js version...",
		"Node.js v18.12.0 found.",
		"Checking JDK version...",
		"OpenJDK 11.0.12 found.",
		"Checking ANDROID_SDK_ROOT...",
		"ANDROID_SDK_ROOT is set.",
		"All checks passed. Environment is ready!",
	}, messages(report.Logs))
	for _, entry := range report.Logs {
		assert.Equal(t, "env", entry.Tag)
	}
}

func TestEnvironmentCheckReportsMissingSDK(t *testing.T) {
	check := EnvironmentCheck{
		Logger: logging.Discard(),
		Clock:  newManualClock(),
		Probes: instantProbes(func(string) (string, bool) { return "", false }),
	}

	report, err := check.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK)

	last := report.Logs[len(report.Logs)-2:]
	assert.Equal(t, LevelError, last[0].Level)
	assert.Equal(t, "ANDROID_SDK_ROOT environment variable not found.", last[0].Message)
	assert.Equal(t, LevelWarn, last[1].Level)
	assert.Contains(t, last[1].Message, "Please set ANDROID_SDK_ROOT")
	assert.NotContains(t, messages(report.Logs), "All checks passed. Environment is ready!")
}

func TestEnvironmentCheckStopsOnCancel(t *testing.T) {
	clock := newManualClock()
	check := EnvironmentCheck{
		Logger: logging.Discard(),
		Clock:  clock,
		Probes: []Probe{{
			Name:  "slow",
			Delay: time.Hour,
			Check: func(context.Context) (string, error) { return "never", nil },
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		report EnvironmentReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := check.Run(ctx)
		done <- outcome{report, err}
	}()

	require.Eventually(t, func() bool { return clock.pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case got := <-done:
		require.ErrorIs(t, got.err, context.Canceled)
		assert.False(t, got.report.OK)
		assert.Equal(t, []string{"Starting environment check...", "Checking slow..."}, messages(got.report.Logs))
	case <-time.After(2 * time.Second):
		t.Fatal("environment check ignored cancellation")
	}
}
