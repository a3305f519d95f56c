package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/discography"
)

func (c *cli) discographyCmd() *cobra.Command {
	var (
		with  string
		mode  string
		limit int
	)
	cmd := &cobra.Command{
		Use:     "discography ARTIST",
		Short:   "List the recordings an artist is credited on",
		Example: `  linernotes discography "Bill Evans" --with "Jim Hall"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			ctx := cmd.Context()

			primary, err := a.resolveArtist(ctx, args[0])
			if err != nil {
				return err
			}
			engine := a.discographyEngine()

			var res *discography.Result
			if with == "" {
				res, err = engine.FetchAll(ctx, primary)
			} else {
				co, rerr := a.resolveArtist(ctx, with)
				if rerr != nil {
					return rerr
				}
				m := discography.MatchMode(strings.ToLower(mode))
				if m == "" {
					m = a.cfg.Matching.CoCreditMode
				}
				if m != discography.ModeFuzzy && m != discography.ModeStrict {
					return fmt.Errorf("invalid --mode %q (want fuzzy or strict)", mode)
				}
				res, err = engine.FetchCoCredit(ctx, primary, co, m)
			}
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			printDiscography(a.out, res, limit)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&with, "with", "", "only recordings also credited to this artist")
	f.StringVar(&mode, "mode", "", "co-credit matching: fuzzy or strict (default from config)")
	f.IntVar(&limit, "limit", 0, "print at most this many titles")
	return cmd
}

// resolveArtist maps a name to a music-graph artist.
func (a *app) resolveArtist(ctx context.Context, name string) (discography.Artist, error) {
	m, err := a.artistResolver().Resolve(ctx, name)
	if err != nil {
		return discography.Artist{}, err
	}
	return discography.Artist{ID: m.ID, Name: m.Name}, nil
}

func printDiscography(w io.Writer, res *discography.Result, limit int) {
	fmt.Fprintf(w, "%s: %s recordings (fetched %s)\n",
		res.ArtistName, humanize.Comma(int64(len(res.Recordings))), humanize.Time(res.FetchedAt))

	recs := res.Recordings
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	for _, r := range recs {
		line := "  " + r.Title
		if len(r.ArtistCredits) > 0 {
			line += " (" + strings.Join(r.ArtistCredits, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
	if n := len(res.Recordings) - len(recs); n > 0 {
		fmt.Fprintf(w, "  ... and %s more\n", humanize.Comma(int64(n)))
	}

	if t := res.Telemetry; t != nil {
		fmt.Fprintf(w, "\nMatched %d by id, %d by ISRC, %d by title (%s mode); %d/%d left over\n",
			t.IDMatches, t.ISRCMatches, t.CanonicalKeyMatches, t.Mode,
			len(t.UnmatchedLeft), len(t.UnmatchedRight))
	}
}
