package build

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/apkforge/internal/archive"
)

func TestDefaultPlanIsValid(t *testing.T) {
	plan := DefaultPlan()
	require.NoError(t, plan.Validate())

	assert.Len(t, plan, 7)
	assert.Equal(t, 100, plan[len(plan)-1].Progress)
	assert.Equal(t, 16800*time.Millisecond, plan.TotalDelay())

	var withAction []string
	for _, phase := range plan {
		if phase.Action != nil {
			withAction = append(withAction, phase.Name)
		}
	}
	assert.Equal(t, []string{"patch-config"}, withAction)
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr string
	}{
		{name: "empty", plan: Plan{}, wantErr: "no phases"},
		{name: "unnamed", plan: Plan{{Progress: 100}}, wantErr: "has no name"},
		{
			name:    "duplicate",
			plan:    Plan{{Name: "a", Progress: 50}, {Name: "a", Progress: 100}},
			wantErr: "duplicate",
		},
		{name: "negative delay", plan: Plan{{Name: "a", Delay: -time.Second, Progress: 100}}, wantErr: "negative delay"},
		{name: "unknown level", plan: Plan{{Name: "a", Level: "LOUD", Progress: 100}}, wantErr: "unknown level"},
		{name: "not above validation", plan: Plan{{Name: "a", Progress: ValidatedProgress}, {Name: "b", Progress: 100}}, wantErr: "progress"},
		{
			name:    "decreasing",
			plan:    Plan{{Name: "a", Progress: 60}, {Name: "b", Progress: 50}, {Name: "c", Progress: 100}},
			wantErr: "progress",
		},
		{name: "over 100", plan: Plan{{Name: "a", Progress: 101}}, wantErr: "progress"},
		{name: "short of 100", plan: Plan{{Name: "a", Progress: 90}}, wantErr: "must reach 100"},
		{name: "single phase", plan: Plan{{Name: "a", Progress: 100}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidPlan)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithDefaultActionsKeepsExistingActions(t *testing.T) {
	custom := func(context.Context, BuildConfig) error { return nil }
	plan := WithDefaultActions(Plan{
		{Name: "patch-config", Progress: 50},
		{Name: "other", Progress: 100, Action: custom},
	})

	require.NotNil(t, plan[0].Action)
	assert.Error(t, plan[0].Action(context.Background(), BuildConfig{PackageID: "bad id"}))
	assert.NoError(t, plan[1].Action(context.Background(), BuildConfig{}))
}

func TestPhaseRender(t *testing.T) {
	phase := Phase{Name: "p", Message: "${appName}|${packageId}|${adMobId}|${icon}|${admob}"}

	assert.Equal(t, "Demo|com.example.demo||default|", phase.render(BuildConfig{AppName: "Demo"}))
	assert.Equal(t,
		"Demo|org.demo|x|logo.png| (AdMob app id x injected)",
		phase.render(BuildConfig{
			AppName:     "Demo",
			PackageID:   "org.demo",
			EnableAdMob: true,
			AdMobID:     "x",
			Icon:        &archive.File{Name: "logo.png"},
		}))
	assert.Equal(t,
		"Demo|com.example.demo||default| (AdMob enabled without an app id)",
		phase.render(BuildConfig{AppName: "Demo", EnableAdMob: true}))

	assert.Equal(t, "bare", Phase{Name: "bare"}.render(BuildConfig{}))
	assert.True(t, strings.HasSuffix(
		Phase{Name: "g", Message: "${gradlew} assembleRelease"}.render(BuildConfig{}), "gradlew assembleRelease") ||
		strings.HasSuffix(Phase{Name: "g", Message: "${gradlew} assembleRelease"}.render(BuildConfig{}), "gradlew.bat assembleRelease"))
}

func TestArtifactName(t *testing.T) {
	tests := map[string]string{
		"My App":           "My-App-release.apk",
		"  Spaced\tOut  ":  "Spaced-Out-release.apk",
		"Single":           "Single-release.apk",
		"":                 "app-release.apk",
		"Multi   Space Go": "Multi-Space-Go-release.apk",
	}
	for in, want := range tests {
		assert.Equal(t, want, ArtifactName(in), "ArtifactName(%q)", in)
	}
}

func TestResolvedPackageID(t *testing.T) {
	tests := []struct {
		config BuildConfig
		want   string
	}{
		{BuildConfig{PackageID: " org.acme.app "}, "org.acme.app"},
		{BuildConfig{AppName: "My App!"}, "com.example.myapp"},
		{BuildConfig{AppName: "2048 Game"}, "com.example.app2048game"},
		{BuildConfig{AppName: "日本"}, "com.example.app"},
		{BuildConfig{}, "com.example.app"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.config.ResolvedPackageID())
		assert.NoError(t, CheckPackageID(tt.want))
	}
}

func TestCheckPackageID(t *testing.T) {
	for _, id := range []string{"com.example.app", "io.a_b.c9"} {
		assert.NoError(t, CheckPackageID(id), id)
	}
	for _, id := range []string{"", "app", "com..app", "1com.app", "com.example.", "com example.app"} {
		assert.ErrorIs(t, CheckPackageID(id), ErrInvalidPackageID, id)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusIdle.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}
