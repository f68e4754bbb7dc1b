package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/clock"
	"github.com/lotas/tabtimer/internal/config"
	"github.com/lotas/tabtimer/internal/notify"
	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/server"
	"github.com/lotas/tabtimer/internal/storage"
	"github.com/lotas/tabtimer/internal/tui"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var (
		port    int
		withTUI bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon and accept the extension's WebSocket connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfgPath, port, withTUI, verbose)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "WebSocket port (default from config, 19191)")
	cmd.Flags().BoolVar(&withTUI, "tui", false, "show the live dashboard")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	return cmd
}

func gateConfig(cfg config.Config) notify.Config {
	return notify.Config{
		Enabled:     cfg.Notifications.Enabled,
		DailyLimits: cfg.DailyLimits(),
		MinInterval: cfg.Notifications.MinInterval,
		Location:    time.Local,
	}
}

func runServe(ctx context.Context, cfgFlag string, port int, withTUI, verbose bool) error {
	path, err := configPath(cfgFlag)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	if verbose && !withTUI {
		applog.SetOutput(os.Stderr, "debug")
	} else if err := applog.Init(cfg.StateDir, cfg.LogLevel); err != nil {
		return fmt.Errorf("init log: %w", err)
	}
	defer applog.Close()

	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := storage.New(db, time.Local)

	// Settings saved from the popup win over the config file.
	empty := cfg.EmptyTabSettings()
	if saved, ok, err := store.LoadEmptyTabSettings(ctx); err != nil {
		return err
	} else if ok {
		empty = saved
	}

	live := config.NewLive(cfg)
	gate := notify.New(clock.Real(), gateConfig(cfg))
	srv := server.New(cfg.Port)
	r := router.New(srv, router.Options{
		Features:      live,
		Recorder:      store,
		Notifier:      srv,
		Gate:          gate,
		EmptyTabs:     empty,
		SweepInterval: cfg.AutoClose.SweepInterval,
		Warnings: router.WarningOptions{
			Enabled:       cfg.Notifications.LastMinuteWarning,
			Window:        cfg.Notifications.WarningWindow,
			CheckInterval: cfg.Notifications.CheckInterval,
		},
	})
	srv.Attach(r)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	if w, err := config.NewWatcher(path, live, func(c config.Config) {
		gate.Configure(gateConfig(c))
	}); err != nil {
		// The config directory may not exist yet; defaults still apply.
		applog.Error("config.watch", err, "path", path)
	} else {
		go w.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()
	applog.Info("serve.start", "port", cfg.Port, "db", cfg.DBPath, "auto_close", cfg.AutoClose.Enabled)

	if withTUI {
		p := tea.NewProgram(tui.NewModel(r, srv.Connected, cfg.Port), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			cancel()
			return err
		}
		cancel()
	} else {
		fmt.Fprintf(os.Stderr, "tabtimer listening on 127.0.0.1:%d\n", cfg.Port)
	}

	return <-errc
}
