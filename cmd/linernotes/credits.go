package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/credits"
	"github.com/sydlexius/linernotes/internal/resolve"
)

func (c *cli) creditsCmd() *cobra.Command {
	var (
		track   resolve.NowPlayingTrack
		refresh bool
	)
	cmd := &cobra.Command{
		Use:     "credits",
		Short:   "Show who played on, wrote and produced a track",
		Example: `  linernotes credits --artist "The Dave Brubeck Quartet" --title "Take Five" --album "Time Out" --track 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			svc := a.creditsService()
			if refresh {
				if err := svc.Invalidate(cmd.Context(), track); err != nil {
					return fmt.Errorf("dropping cached credits: %w", err)
				}
			}
			l, err := svc.Lookup(cmd.Context(), track)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(l)
			}
			printLookup(a.out, track, l)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&track.Artist, "artist", "", "artist name (required)")
	f.StringVar(&track.Title, "title", "", "track title (required)")
	f.StringVar(&track.Album, "album", "", "album title")
	f.IntVar(&track.TrackNumber, "track", 0, "track number on the album, used to filter album-wide credits")
	f.BoolVar(&refresh, "refresh", false, "ignore cached credits")
	_ = cmd.MarkFlagRequired("artist")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func printLookup(w io.Writer, track resolve.NowPlayingTrack, l *credits.Lookup) {
	if l.State != credits.StateLoaded || l.Bundle == nil {
		switch l.State {
		case credits.StateAmbiguous:
			fmt.Fprintln(w, "Several recordings match; add --album or --track to narrow it down.")
		case credits.StateNotFound:
			fmt.Fprintln(w, "No credits found.")
		case credits.StateRateLimited:
			fmt.Fprintf(w, "Rate limited, try again in %s.\n", l.RetryAfter)
		default:
			fmt.Fprintln(w, l.String())
		}
		return
	}

	b := l.Bundle
	fmt.Fprintf(w, "%s - %s", track.Artist, track.Title)
	if r := b.Resolution; r != nil {
		fmt.Fprintf(w, " (recording %s, %.0f%% confidence)", r.RecordingID, r.Confidence*100)
	}
	fmt.Fprintln(w)
	for _, sec := range b.Grouped() {
		fmt.Fprintf(w, "\n%s\n", sec.Title)
		for _, e := range sec.Entries {
			line := "  " + e.Name + ": " + e.Role
			if !e.Scope.IsAlbum() {
				line += " [" + e.Scope.String() + "]"
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "\nSource: %s", b.Provenance)
	if l.Cached {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	if b.Attribution != "" {
		fmt.Fprintln(w, b.Attribution)
	}
}
