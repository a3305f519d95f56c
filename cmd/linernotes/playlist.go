package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/playlist"
)

func (c *cli) playlistCmd() *cobra.Command {
	var (
		req    playlist.BuildRequest
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "playlist ARTIST",
		Short: "Build a Spotify playlist from an artist's credited recordings",
		Example: `  linernotes playlist "Ron Carter" --size 30
  linernotes playlist "Bill Evans" --with "Jim Hall" --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			b, err := a.playlistBuilder()
			if err != nil {
				return err
			}

			req.ArtistName = args[0]
			if req.CoArtistName != "" {
				req.Mode = playlist.ModeCoCredit
				req.MatchMode = a.cfg.Matching.CoCreditMode
				if strict {
					req.MatchMode = discography.ModeStrict
				}
			}
			if !cmd.Flags().Changed("size") {
				req.TargetSize = a.cfg.Matching.PlaylistSize
			}

			errOut := cmd.ErrOrStderr()
			res, err := b.Build(cmd.Context(), req, func(p playlist.Progress) {
				if !a.jsonOut {
					fmt.Fprintln(errOut, p.String())
				}
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			printBuild(a.out, res, req.DryRun)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.CoArtistName, "with", "", "only recordings also credited to this artist")
	f.IntVar(&req.TargetSize, "size", playlist.DefaultTargetSize, "number of tracks (default from config)")
	f.StringVar(&req.Name, "name", "", "playlist name")
	f.StringVar(&req.Description, "description", "", "playlist description")
	f.BoolVar(&req.Public, "public", false, "make the playlist public")
	f.BoolVar(&req.DryRun, "dry-run", false, "resolve tracks without creating the playlist")
	f.BoolVar(&strict, "strict", false, "with --with, match co-credits by id and ISRC only")
	return cmd
}

func printBuild(w io.Writer, res *playlist.BuildResult, dryRun bool) {
	verb := "Created"
	if dryRun {
		verb = "Would create"
	}
	fmt.Fprintf(w, "%s %q: %s tracks, ranked by %s, in %s\n",
		verb, res.Name, humanize.Comma(int64(res.TrackCount)), res.RankedBy, res.Elapsed.Round(time.Millisecond))

	for i, t := range res.Tracks {
		fmt.Fprintf(w, "%3d. %s\n", i+1, t.Name)
	}

	by := res.DroppedBy()
	if len(by) > 0 {
		reasons := make([]playlist.DropReason, 0, len(by))
		for r := range by {
			reasons = append(reasons, r)
		}
		slices.Sort(reasons)
		fmt.Fprintln(w, "\nLeft out:")
		for _, r := range reasons {
			fmt.Fprintf(w, "  %s: %s\n", r, humanize.Comma(int64(by[r])))
		}
	}
	if res.PlaylistURL != "" {
		fmt.Fprintf(w, "\n%s\n", res.PlaylistURL)
	}
}
