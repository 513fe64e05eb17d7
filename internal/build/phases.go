package build

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ValidatedProgress is the progress reported once the archive has been checked.
const ValidatedProgress = 10

// Phase is one scripted step of the simulated pipeline.
type Phase struct {
	Name     string        `yaml:"name"`
	Delay    time.Duration `yaml:"delay"`
	Progress int           `yaml:"progress"`
	Level    Level         `yaml:"level,omitempty"`
	// Message may reference ${appName}, ${packageId}, ${adMobId}, ${icon},
	// ${admob} and ${gradlew}.
	Message string `yaml:"message"`

	// Action runs before the phase is logged. It must return promptly once ctx
	// is cancelled.
	Action func(ctx context.Context, config BuildConfig) error `yaml:"-"`
}

// Plan is the ordered list of phases run after validation.
type Plan []Phase

// DefaultPlan returns the scripted pipeline with its built-in actions attached.
func DefaultPlan() Plan {
	return WithDefaultActions(Plan{
		{Name: "copy-assets", Delay: time.Second, Progress: 25, Level: LevelSuccess, Message: "Copied web build -> android assets."},
		{Name: "patch-config", Delay: 800 * time.Millisecond, Progress: 40, Level: LevelSuccess, Message: "Patched AndroidManifest.xml, strings.xml for ${packageId}${admob}"},
		{Name: "capacitor-sync", Delay: 2500 * time.Millisecond, Progress: 55, Level: LevelCommand, Message: "npx @capacitor/cli sync android"},
		{Name: "gradle-assemble", Delay: 5 * time.Second, Progress: 70, Level: LevelCommand, Message: "${gradlew} assembleRelease"},
		{Name: "compile", Delay: 4 * time.Second, Progress: 85, Level: LevelInfo, Message: "> Task :app:compileReleaseJavaWithJavac"},
		{Name: "merge-assets", Delay: 3 * time.Second, Progress: 95, Level: LevelInfo, Message: "> Task :app:mergeReleaseAssets"},
		{Name: "package", Delay: 500 * time.Millisecond, Progress: 100, Level: LevelSuccess, Message: "BUILD SUCCESSFUL"},
	})
}

// WithDefaultActions attaches the built-in actions to phases matched by name.
// Phases that already carry an action are left alone.
func WithDefaultActions(plan Plan) Plan {
	out := make(Plan, len(plan))
	copy(out, plan)
	for i := range out {
		if out[i].Action != nil {
			continue
		}
		switch out[i].Name {
		case "patch-config":
			out[i].Action = patchConfig
		}
	}
	return out
}

func patchConfig(_ context.Context, config BuildConfig) error {
	return CheckPackageID(config.ResolvedPackageID())
}

// Validate checks that the plan is non-empty, names are unique, and progress
// strictly increases from above ValidatedProgress up to exactly 100.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalidPlan)
	}

	seen := make(map[string]struct{}, len(p))
	last := ValidatedProgress
	for i, phase := range p {
		name := strings.TrimSpace(phase.Name)
		if name == "" {
			return fmt.Errorf("%w: phase %d has no name", ErrInvalidPlan, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidPlan, name)
		}
		seen[name] = struct{}{}

		if phase.Delay < 0 {
			return fmt.Errorf("%w: phase %q has a negative delay", ErrInvalidPlan, name)
		}
		if phase.Level != "" && !phase.Level.Valid() {
			return fmt.Errorf("%w: phase %q has unknown level %q", ErrInvalidPlan, name, phase.Level)
		}
		if phase.Progress <= last || phase.Progress > 100 {
			return fmt.Errorf("%w: phase %q progress %d must be in (%d, 100]", ErrInvalidPlan, name, phase.Progress, last)
		}
		last = phase.Progress
	}

	if last != 100 {
		return fmt.Errorf("%w: final phase must reach 100, got %d", ErrInvalidPlan, last)
	}
	return nil
}

// TotalDelay sums the simulated delays of every phase.
func (p Plan) TotalDelay() time.Duration {
	var total time.Duration
	for _, phase := range p {
		total += phase.Delay
	}
	return total
}

func (phase Phase) level() Level {
	if phase.Level == "" {
		return LevelInfo
	}
	return phase.Level
}

func (phase Phase) render(config BuildConfig) string {
	icon := "default"
	if config.Icon != nil && config.Icon.Name != "" {
		icon = config.Icon.Name
	}
	admob := ""
	if config.EnableAdMob {
		if strings.TrimSpace(config.AdMobID) == "" {
			admob = " (AdMob enabled without an app id)"
		} else {
			admob = fmt.Sprintf(" (AdMob app id %s injected)", config.AdMobID)
		}
	}

	message := phase.Message
	if message == "" {
		message = phase.Name
	}
	return strings.NewReplacer(
		"${appName}", config.AppName,
		"${packageId}", config.ResolvedPackageID(),
		"${adMobId}", config.AdMobID,
		"${icon}", icon,
		"${admob}", admob,
		"${gradlew}", gradleWrapper(),
	).Replace(message)
}

func gradleWrapper() string {
	if runtime.GOOS == "windows" {
		return "gradlew.bat"
	}
	return "./gradlew"
}
