package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"bunstack/internal/api"
	"bunstack/internal/builder"
	"bunstack/internal/config"
	"bunstack/internal/logging"
	"bunstack/internal/session"
	"bunstack/internal/storage"
)

var (
	version  = "0.1.0"
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bunstack",
		Short: "Compose, order and watch stacked burgers from the terminal",
		Long: `Bunstack is a client for the stacked-burger ordering service.
It keeps a composed item in a persisted builder, submits orders, and
follows the live order feeds with automatic fallback to polling.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", config.GetConfigPath()))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bunstack version %s\n", version)
		},
	})

	rootCmd.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newUserCmd(),
		newForgotPasswordCmd(),
		newResetPasswordCmd(),
		newMenuCmd(),
		newBuildCmd(),
		newSubmitCmd(),
		newOrdersCmd(),
		newWatchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the composed services a command needs. Each CLI invocation is
// its own process; continuity between invocations comes from the store.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	sess    *session.Coordinator
	api     *api.Client
	builder *builder.Builder
}

// newApp loads configuration and wires the service graph: store, session
// coordinator, REST client and the builder with its persistence hooks.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Configure(logging.ParseLevel(cfg.Logging.Level), os.Stderr)
	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.API.HTTPTimeout}
	sess := session.New(store, httpClient, cfg.API.BaseURL+"/auth/token")
	client := api.NewClient(cfg.API.BaseURL, httpClient, sess, store)

	b := builder.New()
	b.OnChange = func(snap builder.Snapshot) {
		// Snapshot persistence is an authenticated-only feature.
		if !sess.Authenticated() {
			return
		}
		if err := store.SaveSnapshot(snap); err != nil {
			logging.Warn("failed to persist builder snapshot", "error", err)
		}
	}
	b.OnWipe = store.ClearSnapshot

	if sess.Authenticated() {
		snap, err := store.LoadSnapshot()
		switch {
		case err == nil:
			b.ApplySnapshot(snap)
		case errors.Is(err, storage.ErrNoSnapshot):
			// Nothing persisted, start empty.
		default:
			logging.Info("discarded persisted builder snapshot", "reason", err)
		}
	}

	return &app{
		cfg:     cfg,
		store:   store,
		sess:    sess,
		api:     client,
		builder: b,
	}, nil
}

// requireAuth fails fast when a command needs a session.
func (a *app) requireAuth() error {
	if !a.sess.Authenticated() {
		return errors.New("not logged in, run: bunstack login <email> <password>")
	}
	return nil
}
