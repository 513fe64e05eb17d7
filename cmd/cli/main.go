package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	config "github.com/cochaviz/apkforge/config"
	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/build"
	"github.com/cochaviz/apkforge/internal/daemon"
	"github.com/cochaviz/apkforge/internal/logging"
	"github.com/cochaviz/apkforge/internal/setup"
)

const tokenEnv = "APKFORGE_TOKEN"

// app carries state resolved by the root command before any subcommand runs.
type app struct {
	levelVar   *slog.LevelVar
	logger     *slog.Logger
	settings   setup.Settings
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{levelVar: &levelVar, logger: logger, settings: setup.DefaultSettings()}
	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, build.ErrCancelled) {
			a.logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		a.logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	setup.SetLogger(a.logger.With("component", "setup"))

	root := &cobra.Command{
		Use:           "apkforge",
		Short:         "CLI for 'apkforge': package a web project into a (simulated) Android release",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", setup.DefaultConfigFile, "Path to the YAML settings file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log output format (cli, json)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.configure(cmd)
	}

	root.AddCommand(
		newBuildCommand(a),
		newValidateCommand(a),
		newCheckEnvCommand(a),
		newServeCommand(a),
		newRemoteCommand(a),
		newTokenCommand(a),
		newSetupCommand(a),
	)
	return root
}

// configure loads the settings file and applies the logging flags on top.
func (a *app) configure(cmd *cobra.Command) error {
	settings, err := setup.LoadSettings(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		settings.LogFormat = a.logFormat
	}

	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	mode, err := logging.ParseMode(settings.LogFormat)
	if err != nil {
		return err
	}

	a.levelVar.Set(level)
	a.logger = logging.New(mode, os.Stderr, a.levelVar)
	slog.SetDefault(a.logger)
	setup.SetLogger(a.logger.With("component", "setup"))
	a.settings = settings
	return nil
}

type appFlags struct {
	name        string
	packageID   string
	enableAdMob bool
	adMobID     string
	iconPath    string
}

func (f *appFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Application display name (defaults to the archive name)")
	cmd.Flags().StringVar(&f.packageID, "package-id", "", "Reverse-domain package identifier (defaults to com.example.<name>)")
	cmd.Flags().BoolVar(&f.enableAdMob, "admob", false, "Enable AdMob integration")
	cmd.Flags().StringVar(&f.adMobID, "admob-id", "", "AdMob application id")
	cmd.Flags().StringVar(&f.iconPath, "icon", "", "Path to an application icon")
}

func (f *appFlags) appName(archivePath string) string {
	if name := strings.TrimSpace(f.name); name != "" {
		return name
	}
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newBuildCommand(a *app) *cobra.Command {
	var (
		flags     appFlags
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "build <archive>",
		Args:  cobra.ExactArgs(1),
		Short: "Run a build for the web project archive; press Ctrl+C to cancel",
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := strings.TrimSpace(args[0])
			if archivePath == "" {
				return fmt.Errorf("archive path is required")
			}

			cmdLogger := a.logger.With("command", "build", "archive", filepath.Base(archivePath))
			cmdLogger.Info("starting build", "output_dir", outputDir, "phases", len(a.settings.Plan()))

			out := cmd.OutOrStdout()
			result, err := config.Build(cmd.Context(), a.settings, config.BuildRequest{
				ArchivePath: archivePath,
				IconPath:    flags.iconPath,
				AppName:     flags.appName(archivePath),
				PackageID:   flags.packageID,
				EnableAdMob: flags.enableAdMob,
				AdMobID:     flags.adMobID,
				OutputDir:   outputDir,
			}, cmdLogger, func(entry build.LogEntry) {
				printLogEntry(out, entry)
			})
			if err != nil {
				cmdLogger.Error("build did not complete", "status", result.Snapshot.Status, "error", err)
				return err
			}

			fmt.Fprintln(out, result.OutputPath)
			cmdLogger.Info("build completed", "artifact", result.Snapshot.ApkName)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Directory the generated package is written to")

	return cmd
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive>",
		Args:  cobra.ExactArgs(1),
		Short: "Check that an archive contains an index.html entry point",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := a.logger.With("command", "validate")

			result, err := config.Validate(cmd.Context(), args[0], cmdLogger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s archive, %d entries, entry point %s\n", result.Kind, result.EntryCount, result.EntryPath)
			return nil
		},
	}
}

func newCheckEnvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-env",
		Short: "Run the (scripted) build environment check",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := a.logger.With("command", "check-env")

			report, err := config.CheckEnvironment(cmd.Context(), cmdLogger)
			for _, entry := range report.Logs {
				printLogEntry(cmd.OutOrStdout(), entry)
			}
			if err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("environment check failed")
			}
			return nil
		},
	}
}

func newServeCommand(a *app) *cobra.Command {
	var (
		listen    string
		jwtSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the build controller over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := a.settings
			if cmd.Flags().Changed("listen") {
				settings.Listen = listen
			}
			if cmd.Flags().Changed("jwt-secret") {
				settings.JWTSecret = jwtSecret
			}

			cmdLogger := a.logger.With("command", "serve")
			cmdLogger.Info("starting daemon; press Ctrl+C to stop", "listen", settings.Listen, "artifact_store", settings.ArtifactStore)
			return config.Serve(cmd.Context(), settings, cmdLogger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", setup.DefaultListen, "Address to listen on")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "Require bearer tokens signed with this secret on mutating routes")

	return cmd
}

func newRemoteCommand(a *app) *cobra.Command {
	var (
		address string
		token   string
	)
	client := func() *daemon.Client {
		if token == "" {
			token = os.Getenv(tokenEnv)
		}
		return daemon.NewClient(address, token)
	}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive a running apkforge daemon",
	}
	cmd.PersistentFlags().StringVar(&address, "address", daemon.DefaultAddress, "Daemon base URL")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (defaults to $"+tokenEnv+")")

	cmd.AddCommand(
		newRemoteStatusCommand(client),
		newRemoteStartCommand(a, client),
		newRemoteSimpleCommand("cancel", "Cancel the running build", func(ctx context.Context, c *daemon.Client) (build.Snapshot, error) {
			return c.Cancel(ctx)
		}, client),
		newRemoteSimpleCommand("clear", "Clear logs and reset the daemon to idle", func(ctx context.Context, c *daemon.Client) (build.Snapshot, error) {
			return c.Clear(ctx)
		}, client),
		newRemoteDownloadCommand(client),
	)
	return cmd
}

func newRemoteStatusCommand(client func() *daemon.Client) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's build status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := client().Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showLogs {
				for _, entry := range snapshot.Logs {
					printLogEntry(out, entry)
				}
			}
			printSnapshot(out, snapshot)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showLogs, "logs", false, "Print the build log as well")
	return cmd
}

func newRemoteStartCommand(a *app, client func() *daemon.Client) *cobra.Command {
	var flags appFlags

	cmd := &cobra.Command{
		Use:   "start <archive>",
		Args:  cobra.ExactArgs(1),
		Short: "Submit a web project archive to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := archive.OpenFile(args[0])
			if err != nil {
				return err
			}
			request := daemon.StartRequest{
				Archive:     file,
				AppName:     flags.appName(args[0]),
				PackageID:   flags.packageID,
				EnableAdMob: flags.enableAdMob,
				AdMobID:     flags.adMobID,
			}
			if flags.iconPath != "" {
				if request.Icon, err = archive.OpenFile(flags.iconPath); err != nil {
					return err
				}
			}

			snapshot, err := client().Start(cmd.Context(), request)
			if err != nil {
				return err
			}
			a.logger.Info("build submitted", "command", "remote.start", "build_id", snapshot.BuildID)
			printSnapshot(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRemoteSimpleCommand(use, short string, call func(context.Context, *daemon.Client) (build.Snapshot, error), client func() *daemon.Client) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := call(cmd.Context(), client())
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
}

func newRemoteDownloadCommand(client func() *daemon.Client) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the package produced by the last completed build",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			snapshot, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			if snapshot.Status != build.StatusCompleted {
				return fmt.Errorf("no artifact: build is %s", snapshot.Status)
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			path := filepath.Join(outputDir, snapshot.ApkName)
			out, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := c.DownloadArtifact(cmd.Context(), out); err != nil {
				return errors.Join(err, out.Close())
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Directory the package is written to")
	return cmd
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		subject   string
		ttl       time.Duration
		jwtSecret string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the daemon's mutating routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.settings.JWTSecret
			if cmd.Flags().Changed("jwt-secret") {
				secret = jwtSecret
			}
			if secret == "" {
				return fmt.Errorf("no jwt secret configured; set jwt_secret in %s or pass --jwt-secret", a.configPath)
			}

			token, err := daemon.GenerateToken([]byte(secret), subject, ttl)
			if err != nil {
				return err
			}
			a.logger.Debug("token minted", "command", "token", "subject", subject, "ttl", ttl)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "apkforge", "Subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", daemon.DefaultTokenTTL, "Token lifetime")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "Signing secret (defaults to jwt_secret from the settings file)")

	return cmd
}

func newSetupCommand(a *app) *cobra.Command {
	var clearConfig bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := a.logger.With("command", "setup")

			alreadyConfigured := setup.Verify(a.configPath) == nil
			if alreadyConfigured && !clearConfig {
				cmdLogger.Info("system already configured", "path", a.configPath, "hint", "use 'apkforge setup --clear' to reinitialize")
				return nil
			}

			if clearConfig {
				cmdLogger.Info("clearing existing configuration", "path", a.configPath)
				if err := setup.ClearConfig(a.configPath); err != nil {
					cmdLogger.Error("clear configuration failed", "error", err)
					return fmt.Errorf("clear configuration: %w", err)
				}
			}

			if err := setup.WriteDefault(a.configPath, clearConfig); err != nil {
				return err
			}
			cmdLogger.Info("configuration written", "path", a.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&clearConfig, "clear", "C", false, "Remove existing settings before writing the defaults")

	return cmd
}

func printLogEntry(w io.Writer, entry build.LogEntry) {
	fmt.Fprintf(w, "[%s] %-7s %s\n", entry.Timestamp, entry.Level, entry.Message)
}

func printSnapshot(w io.Writer, snapshot build.Snapshot) {
	fmt.Fprintf(w, "status:   %s\n", snapshot.Status)
	fmt.Fprintf(w, "progress: %d%%\n", snapshot.Progress)
	if snapshot.BuildID != "" {
		fmt.Fprintf(w, "build:    %s\n", snapshot.BuildID)
	}
	if snapshot.ApkName != "" {
		fmt.Fprintf(w, "artifact: %s (%s)\n", snapshot.ApkName, snapshot.ApkURL)
	}
	if snapshot.Error != "" {
		fmt.Fprintf(w, "error:    %s\n", snapshot.Error)
	}
}
