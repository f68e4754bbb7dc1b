package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lotas/tabtimer/internal/analyzer"
	"github.com/lotas/tabtimer/internal/config"
	"github.com/lotas/tabtimer/internal/firefox"
	"github.com/lotas/tabtimer/internal/types"
)

func newAuditCmd(cfgPath *string) *cobra.Command {
	var profileName string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report which tabs of a saved Firefox session the daemon would clean up",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(*cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return err
			}
			profile, err := firefox.ResolveProfile(profiles, resolveProfileName(profileName))
			if err != nil {
				return err
			}
			data, err := firefox.ReadSessionFile(profile.Path)
			if err != nil {
				return err
			}
			data.Profile = profile

			opts := analyzer.AuditOptions{Now: time.Now()}
			if cfg.EmptyTabs.Enabled {
				opts.EmptyCleanup = cfg.EmptyTabs.CleanupInterval
			}
			if cfg.AutoClose.Enabled {
				opts.InactivityThreshold = cfg.AutoClose.InactivityThreshold
			}
			printAudit(data, analyzer.Audit(data, opts), opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileName, "profile", "", "Firefox profile name (env: TABTIMER_PROFILE)")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List Firefox profiles with a saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				return fmt.Errorf("no Firefox profiles found")
			}
			for _, p := range profiles {
				suffix := ""
				if p.IsDefault {
					suffix = " [default]"
				}
				fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
			}
			return nil
		},
	}
}

// resolveProfileName returns the profile name from the flag if set,
// otherwise falls back to the TABTIMER_PROFILE environment variable.
func resolveProfileName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("TABTIMER_PROFILE")
}

func printAudit(data *types.SessionData, r analyzer.Report, opts analyzer.AuditOptions) {
	fmt.Printf("Profile %s: %d tabs in %d windows\n", data.Profile.Name, r.Total, data.Windows)
	fmt.Printf("  tracked %d · untracked %d · pinned %d · empty %d\n",
		r.Trackable, r.Total-r.Trackable, r.Pinned, r.Empty)

	if opts.EmptyCleanup > 0 {
		fmt.Printf("\nEmpty tabs idle for %s or more (%d):\n", opts.EmptyCleanup, len(r.EmptyExpired))
		printTabs(r.EmptyExpired, opts.Now)
	}
	if opts.InactivityThreshold > 0 {
		fmt.Printf("\nTabs inactive for more than %s (%d):\n", opts.InactivityThreshold, len(r.Inactive))
		printTabs(r.Inactive, opts.Now)
	} else {
		fmt.Println("\nInactivity auto-close is disabled.")
	}
	if len(r.Duplicates) > 0 {
		fmt.Printf("\nDuplicates (%d groups):\n", len(r.Duplicates))
		for _, g := range r.Duplicates {
			fmt.Printf("  %dx %s\n", len(g), g[0].URL)
		}
	}
	if len(r.Domains) > 0 {
		fmt.Println("\nTop sites:")
		for i, d := range r.Domains {
			if i == 10 {
				break
			}
			fmt.Printf("  %4d  %s\n", d.Tabs, d.Domain)
		}
	}
}

func printTabs(tabs []*types.Tab, now time.Time) {
	for _, t := range tabs {
		title := t.Title
		if title == "" {
			title = t.URL
		}
		fmt.Printf("  [w%d #%d] %s (idle %s)\n", t.WindowIndex, t.TabIndex, title, now.Sub(t.LastAccessed).Round(time.Minute))
	}
}
