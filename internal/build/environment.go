package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cochaviz/apkforge/internal/logging"
)

// Probe is one scripted environment check.
type Probe struct {
	Name  string
	Delay time.Duration
	Check func(ctx context.Context) (string, error)
}

// ProbeError reports a failed probe together with a remediation hint.
type ProbeError struct {
	Msg  string
	Hint string
}

func (e *ProbeError) Error() string { return e.Msg }

// EnvironmentReport is the outcome of an EnvironmentCheck run.
type EnvironmentReport struct {
	OK   bool       `json:"ok"`
	Logs []LogEntry `json:"logs"`
}

// EnvironmentCheck walks a list of probes, logging each one. Nothing is
// executed on the host; the toolchain probes are cosmetic.
type EnvironmentCheck struct {
	Logger *slog.Logger
	Clock  Clock
	Probes []Probe
}

// DefaultProbes returns the Node.js, JDK and Android SDK probes. lookupEnv
// defaults to os.LookupEnv.
func DefaultProbes(lookupEnv func(string) (string, bool)) []Probe {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return []Probe{
		{
			Name:  "Node.js version",
			Delay: 300 * time.Millisecond,
			Check: func(context.Context) (string, error) { return "Node.js v18.12.0 found.", nil },
		},
		{
			Name:  "JDK version",
			Delay: 300 * time.Millisecond,
			Check: func(context.Context) (string, error) { return "OpenJDK 11.0.12 found.", nil },
		},
		{
			Name:  "ANDROID_SDK_ROOT",
			Delay: 300 * time.Millisecond,
			Check: func(context.Context) (string, error) {
				if value, ok := lookupEnv("ANDROID_SDK_ROOT"); ok && value != "" {
					return "ANDROID_SDK_ROOT is set.", nil
				}
				return "", &ProbeError{
					Msg:  "ANDROID_SDK_ROOT environment variable not found.",
					Hint: "Please set ANDROID_SDK_ROOT to your Android SDK location.",
				}
			},
		},
	}
}

// Run executes every probe in order. A failed probe marks the report as not
// OK but does not stop the remaining probes. Cancelling ctx stops the run and
// returns the partial report with ctx.Err().
func (e EnvironmentCheck) Run(ctx context.Context) (EnvironmentReport, error) {
	clock := e.Clock
	if clock == nil {
		clock = SystemClock()
	}
	probes := e.Probes
	if probes == nil {
		probes = DefaultProbes(nil)
	}
	logger := logging.Ensure(e.Logger)

	report := EnvironmentReport{OK: true}
	add := func(level Level, message string) {
		report.Logs = append(report.Logs, LogEntry{
			Timestamp: clock.Now().Format(timestampLayout),
			Level:     level,
			Message:   message,
			Tag:       "env",
		})
	}

	add(LevelInfo, "Starting environment check...")
	for _, probe := range probes {
		add(LevelInfo, fmt.Sprintf("Checking %s...", probe.Name))
		if err := sleep(ctx, clock, probe.Delay); err != nil {
			report.OK = false
			return report, err
		}

		message, err := probe.Check(ctx)
		if err != nil {
			report.OK = false
			add(LevelError, err.Error())
			var probeErr *ProbeError
			if errors.As(err, &probeErr) && probeErr.Hint != "" {
				add(LevelWarn, probeErr.Hint)
			}
			logger.Warn("environment probe failed", "probe", probe.Name, "error", err)
			continue
		}
		add(LevelSuccess, message)
	}

	if report.OK {
		add(LevelSuccess, "All checks passed. Environment is ready!")
	}
	return report, nil
}
