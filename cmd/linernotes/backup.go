package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (c *cli) backupCmd() *cobra.Command {
	var noPrune bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the cache database and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			svc := a.backupService()
			snap, err := svc.Create(cmd.Context())
			if err != nil {
				return err
			}
			var removed []string
			if !noPrune {
				if removed, err = svc.Prune(); err != nil {
					return err
				}
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"snapshot": snap, "pruned": removed})
			}
			fmt.Fprintf(a.out, "Wrote %s (%s)\n", snap.Filename, humanize.Bytes(uint64(snap.Size)))
			for _, name := range removed {
				fmt.Fprintf(a.out, "Pruned %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "keep every existing snapshot")
	cmd.AddCommand(c.backupListCmd(), c.backupRemoveCmd())
	return cmd
}

func (c *cli) backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a := c.app
			svc := a.backupService()
			snaps, err := svc.List()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintf(a.out, "No snapshots in %s\n", svc.Dir())
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(a.out, "%s  %8s  %s\n", s.Filename, humanize.Bytes(uint64(s.Size)), humanize.Time(s.CreatedAt))
			}
			return nil
		},
	}
}

func (c *cli) backupRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove FILENAME",
		Short: "Delete one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.app.backupService().Remove(args[0])
		},
	}
}
