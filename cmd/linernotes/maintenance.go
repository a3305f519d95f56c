package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/maintenance"
)

func (c *cli) maintenanceCmd() *cobra.Command {
	var (
		vacuum bool
		status bool
		serve  bool
	)
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Purge expired cache entries and optimize the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			ctx := cmd.Context()
			svc := a.maintenanceService()

			if status {
				st, err := svc.Status(ctx)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(st)
				}
				printStatus(a.out, st)
				return nil
			}

			if serve {
				st, err := svc.Status(ctx)
				if err != nil {
					return err
				}
				if !st.ScheduleEnabled {
					return fmt.Errorf("scheduled maintenance is disabled (see maintenance schedule)")
				}
				svc.StartScheduler(ctx, time.Duration(st.ScheduleInterval)*time.Hour)
				return nil
			}

			rep, err := svc.Run(ctx, vacuum)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(rep)
			}
			fmt.Fprintf(a.out, "Purged %s expired cache entries", humanize.Comma(rep.Purged))
			if rep.Vacuumed {
				fmt.Fprint(a.out, " and vacuumed")
			}
			fmt.Fprintf(a.out, " in %s\n", rep.Duration.Round(time.Millisecond))
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&vacuum, "vacuum", false, "also VACUUM the database")
	f.BoolVar(&status, "status", false, "show database and cache status instead")
	f.BoolVar(&serve, "serve", false, "run scheduled maintenance until interrupted")
	cmd.AddCommand(c.maintenanceScheduleCmd())
	return cmd
}

func (c *cli) maintenanceScheduleCmd() *cobra.Command {
	var (
		disable bool
		every   int
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Configure scheduled maintenance for maintenance --serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			if err := a.maintenanceService().SetSchedule(cmd.Context(), !disable, every); err != nil {
				return err
			}
			if disable {
				fmt.Fprintln(a.out, "Scheduled maintenance disabled")
			} else {
				fmt.Fprintf(a.out, "Scheduled maintenance every %dh\n", every)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "turn scheduled maintenance off")
	cmd.Flags().IntVar(&every, "every", 24, "interval in hours")
	return cmd
}

func printStatus(w io.Writer, st *maintenance.Status) {
	fmt.Fprintf(w, "Database: %s (WAL %s, %s pages of %s)\n",
		humanize.Bytes(uint64(st.DBFileSize)), humanize.Bytes(uint64(st.WALFileSize)),
		humanize.Comma(st.PageCount), humanize.Bytes(uint64(st.PageSize)))
	if cs := st.Cache; cs != nil {
		fmt.Fprintf(w, "Cache: %s entries, %s expired, %s\n",
			humanize.Comma(cs.Entries), humanize.Comma(cs.Expired), humanize.Bytes(uint64(cs.Bytes)))
	}
	last := "never"
	if t, err := time.Parse(time.RFC3339, st.LastRunAt); err == nil {
		last = humanize.Time(t)
	}
	fmt.Fprintf(w, "Last run: %s\n", last)
	if st.ScheduleEnabled {
		fmt.Fprintf(w, "Schedule: every %dh\n", st.ScheduleInterval)
	} else {
		fmt.Fprintln(w, "Schedule: disabled")
	}
}
