package simple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/artifacts"
	"github.com/cochaviz/apkforge/internal/build"
	"github.com/cochaviz/apkforge/internal/daemon"
	"github.com/cochaviz/apkforge/internal/logging"
	"github.com/cochaviz/apkforge/internal/setup"
)

const shutdownTimeout = 5 * time.Second

// BuildRequest describes a build started from the command line.
type BuildRequest struct {
	ArchivePath string
	IconPath    string
	AppName     string
	PackageID   string
	EnableAdMob bool
	AdMobID     string
	// OutputDir receives a copy of the artifact. Empty skips the copy.
	OutputDir string
}

// BuildResult is the final state of a command line build.
type BuildResult struct {
	Snapshot   build.Snapshot
	OutputPath string
}

// NewArtifactStore selects the artifact store configured in settings.
func NewArtifactStore(settings setup.Settings) (artifacts.ArtifactStore, error) {
	switch settings.ArtifactStore {
	case "", setup.StoreMemory:
		return artifacts.NewMemoryArtifactStore(), nil
	case setup.StoreLocal:
		if err := os.MkdirAll(settings.ArtifactDir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact directory: %w", err)
		}
		return &artifacts.LocalArtifactStore{BaseDir: settings.ArtifactDir}, nil
	default:
		return nil, fmt.Errorf("unknown artifact store %q", settings.ArtifactStore)
	}
}

// NewController wires settings into a build controller.
func NewController(settings setup.Settings, logger *slog.Logger) (*build.Controller, error) {
	logger = logging.Ensure(logger)

	store, err := NewArtifactStore(settings)
	if err != nil {
		return nil, err
	}
	return build.NewController(build.ControllerOptions{
		Logger:        logger.With("component", "build"),
		Validator:     archive.Validator{Logger: logger.With("component", "archive")},
		ArtifactStore: store,
		Plan:          settings.Plan(),
	})
}

// Build runs one build to completion. Cancelling ctx cancels the build. Every
// log entry is passed to onLog as it is appended.
func Build(ctx context.Context, settings setup.Settings, request BuildRequest, logger *slog.Logger, onLog func(build.LogEntry)) (BuildResult, error) {
	logger = logging.Ensure(logger).With("component", "config.simple")

	config, err := loadConfig(request)
	if err != nil {
		return BuildResult{}, err
	}

	controller, err := NewController(settings, logger)
	if err != nil {
		return BuildResult{}, err
	}
	defer controller.Close()

	events, unsubscribe := controller.Subscribe(256)
	defer unsubscribe()

	if err := controller.StartBuild(config); err != nil {
		return BuildResult{}, err
	}

	var snapshot build.Snapshot
	var g errgroup.Group
	g.Go(func() error {
		for event := range events {
			if event.Type == build.EventLog && event.Entry != nil && onLog != nil {
				onLog(*event.Entry)
			}
		}
		return nil
	})
	g.Go(func() error {
		// Unsubscribing closes the event channel once buffered events drain.
		defer unsubscribe()

		var err error
		snapshot, err = controller.Wait(ctx)
		if err == nil {
			return nil
		}
		logger.Info("cancelling build", "reason", context.Cause(ctx))
		controller.CancelBuild()
		snapshot, err = controller.Wait(context.Background())
		return err
	})
	if err := g.Wait(); err != nil {
		return BuildResult{}, err
	}

	result := BuildResult{Snapshot: snapshot}
	switch snapshot.Status {
	case build.StatusCompleted:
	case build.StatusCancelled:
		return result, build.ErrCancelled
	default:
		return result, fmt.Errorf("build failed: %s", snapshot.Error)
	}

	if request.OutputDir != "" {
		path, err := exportArtifact(controller, request.OutputDir)
		if err != nil {
			return result, err
		}
		result.OutputPath = path
		logger.Info("artifact written", "path", path)
	}
	return result, nil
}

func loadConfig(request BuildRequest) (build.BuildConfig, error) {
	config := build.BuildConfig{
		AppName:     request.AppName,
		PackageID:   request.PackageID,
		EnableAdMob: request.EnableAdMob,
		AdMobID:     request.AdMobID,
	}

	// A missing archive path is reported by the controller as missing input.
	if request.ArchivePath != "" {
		file, err := archive.OpenFile(request.ArchivePath)
		if err != nil {
			return build.BuildConfig{}, err
		}
		config.Archive = file
	}
	if request.IconPath != "" {
		icon, err := archive.OpenFile(request.IconPath)
		if err != nil {
			return build.BuildConfig{}, err
		}
		config.Icon = icon
	}
	return config, nil
}

func exportArtifact(controller *build.Controller, outputDir string) (string, error) {
	rc, handle, err := controller.OpenArtifact()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outputDir, handle.Name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		return "", errors.Join(fmt.Errorf("write %s: %w", path, err), out.Close())
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Validate checks the archive at path without building anything.
func Validate(ctx context.Context, path string, logger *slog.Logger) (archive.Result, error) {
	file, err := archive.OpenFile(path)
	if err != nil {
		return archive.Result{}, err
	}
	validator := archive.Validator{Logger: logging.Ensure(logger).With("component", "archive")}
	return validator.Validate(ctx, file)
}

// CheckEnvironment runs the scripted toolchain probes.
func CheckEnvironment(ctx context.Context, logger *slog.Logger) (build.EnvironmentReport, error) {
	check := build.EnvironmentCheck{
		Logger: logging.Ensure(logger).With("component", "environment"),
		Probes: build.DefaultProbes(nil),
	}
	return check.Run(ctx)
}

// Serve runs the daemon on settings.Listen until ctx is cancelled.
func Serve(ctx context.Context, settings setup.Settings, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", settings.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.Listen, err)
	}
	return ServeListener(ctx, listener, settings, logger)
}

// ServeListener runs the daemon on an existing listener until ctx is
// cancelled, then shuts the server and controller down.
func ServeListener(ctx context.Context, listener net.Listener, settings setup.Settings, logger *slog.Logger) error {
	logger = logging.Ensure(logger)

	controller, err := NewController(settings, logger)
	if err != nil {
		listener.Close()
		return err
	}

	server := &http.Server{
		Handler:           daemon.NewServer(controller, logger, []byte(settings.JWTSecret)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("daemon listening", "address", listener.Addr().String(), "auth", settings.JWTSecret != "")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Closing the controller first ends open event streams.
		controller.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("daemon stopped")
		return nil
	})
	return g.Wait()
}
