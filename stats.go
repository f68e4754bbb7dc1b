package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lotas/tabtimer/internal/config"
	"github.com/lotas/tabtimer/internal/storage"
)

const memoryPerTabMB = 75

func newStatsCmd(cfgPath *string) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show auto-close counts and per-site usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(*cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			db, err := storage.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.New(db, time.Local)
			ctx := cmd.Context()

			total, err := store.TotalAutoClosed(ctx)
			if err != nil {
				return err
			}
			opened, err := store.TabsOpened(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Auto-closed: %d tabs (~%d MB saved) · opened: %d tabs\n\n", total, total*memoryPerTabMB, opened)

			counts, err := store.DailyCounts(ctx, time.Now(), days)
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Printf("  %s  %d\n", c.Day, c.Count)
			}

			top, err := store.TopDomains(ctx, 10)
			if err != nil {
				return err
			}
			if len(top) > 0 {
				fmt.Println("\nTop sites by active time:")
				for _, u := range top {
					fmt.Printf("  %-30s %10s  %3d tabs  %4d visits  avg %s\n",
						u.Domain, u.TotalTime.Round(time.Second), u.TotalTabs, u.Visits, u.AvgPerTab().Round(time.Second))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", storage.RetentionDays, "number of days to show")
	return cmd
}
