package build

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/artifacts"
)

// Status captures the lifecycle state of the controller.
type Status string

// Supported build statuses.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s ends a build attempt.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Level is the severity shown next to a log line.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelCommand Level = "CMD"
	LevelSuccess Level = "SUCCESS"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelCommand, LevelSuccess, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

// Tags attached to log entries that are not produced by a phase.
const (
	TagStart     = "start"
	TagValidate  = "validate"
	TagSuccess   = "success"
	TagError     = "error"
	TagCancelled = "cancelled"
)

// timestampLayout mirrors a locale time string.
const timestampLayout = "15:04:05"

// LogEntry is one line of the build log.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	Tag       string `json:"tag,omitempty"`
}

// BuildConfig is supplied by the caller and never mutated by the controller.
type BuildConfig struct {
	Archive     *archive.File
	AppName     string
	PackageID   string
	EnableAdMob bool
	AdMobID     string
	Icon        *archive.File
}

var packageIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

// ResolvedPackageID returns PackageID, or com.example.<slug> derived from the
// app name when none was given.
func (c BuildConfig) ResolvedPackageID() string {
	if id := strings.TrimSpace(c.PackageID); id != "" {
		return id
	}

	var b strings.Builder
	for _, r := range strings.ToLower(c.AppName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" || (slug[0] >= '0' && slug[0] <= '9') {
		slug = "app" + slug
	}
	return "com.example." + slug
}

// ArtifactName derives the suggested download name: whitespace runs in the app
// name become single hyphens, followed by the release suffix.
func ArtifactName(appName string) string {
	name := strings.Join(strings.Fields(appName), "-")
	if name == "" {
		name = "app"
	}
	return name + "-release.apk"
}

// CheckPackageID rejects identifiers that are not reverse-domain names.
func CheckPackageID(id string) error {
	if !packageIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q is not a reverse-domain identifier", ErrInvalidPackageID, id)
	}
	return nil
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	BuildID    string              `json:"buildId,omitempty"`
	Status     Status              `json:"status"`
	Progress   int                 `json:"progress"`
	Logs       []LogEntry          `json:"logs"`
	Artifact   *artifacts.Artifact `json:"artifact,omitempty"`
	ApkURL     string              `json:"apkUrl,omitempty"`
	ApkName    string              `json:"apkName,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
