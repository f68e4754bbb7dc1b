package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lotas/tabtimer/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "tabtimer",
		Short:         "Tab lifecycle and auto-close daemon for the tabtimer browser extension",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ~/.config/tabtimer/config.yaml)")

	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(newAuditCmd(&cfgPath))
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newStatsCmd(&cfgPath))
	root.AddCommand(newConfigCmd(&cfgPath))
	return root
}

// configPath returns the flag value, or the default location.
func configPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultPath()
}
