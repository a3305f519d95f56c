// Package playlist builds a catalogue playlist from an artist's
// discography, or from the recordings two artists share.
package playlist

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sydlexius/linernotes/internal/catalogue"
	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/resolve"
)

// ErrNoTracksResolved is returned when no recording matched a catalogue track.
var ErrNoTracksResolved = errors.New("no catalogue tracks resolved")

// DefaultTargetSize is the playlist length used when a request sets none.
const DefaultTargetSize = 50

// Mode selects single-artist or co-credit playlists.
type Mode string

// Build modes.
const (
	ModeSingle   Mode = "single"
	ModeCoCredit Mode = "co_credit"
)

// BuildRequest describes a playlist to build. Artist ids are resolved from
// the names when empty.
type BuildRequest struct {
	ArtistName   string                `json:"artist_name"`
	ArtistID     string                `json:"artist_id,omitempty"`
	CoArtistName string                `json:"co_artist_name,omitempty"`
	CoArtistID   string                `json:"co_artist_id,omitempty"`
	Mode         Mode                  `json:"mode"`
	MatchMode    discography.MatchMode `json:"match_mode,omitempty"`
	TargetSize   int                   `json:"target_size"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	Public       bool                  `json:"public"`
	// DryRun stops before the playlist is created.
	DryRun bool `json:"dry_run,omitempty"`
}

// DropReason says why a recording did not make it into the playlist.
type DropReason string

// Drop reasons.
const (
	DropRankedOut      DropReason = "ranked_out"
	DropMissingCredits DropReason = "missing_artist_credits"
	DropNoMatch        DropReason = "no_catalogue_match"
	DropRateLimited    DropReason = "rate_limited"
	DropDuplicateURI   DropReason = "duplicate_uri"
	DropTruncated      DropReason = "truncated"
)

// DroppedItem is one recording left out, with the reason.
type DroppedItem struct {
	RecordingID string     `json:"recording_id"`
	Title       string     `json:"title"`
	Reason      DropReason `json:"reason"`
}

// RankSource is the signal the recordings were ranked by.
type RankSource string

// Rank sources, in fallback order.
const (
	RankPopularity    RankSource = "popularity"
	RankTopRecordings RankSource = "top_recordings"
	RankAlphabetical  RankSource = "alphabetical"
)

// BuildResult is a built playlist. PlaylistID and PlaylistURL are empty
// for a dry run.
type BuildResult struct {
	PlaylistID  string                    `json:"playlist_id,omitempty"`
	PlaylistURL string                    `json:"playlist_url,omitempty"`
	Name        string                    `json:"name"`
	TrackCount  int                       `json:"track_count"`
	Tracks      []catalogue.ResolvedTrack `json:"tracks"`
	Dropped     []DroppedItem             `json:"dropped,omitempty"`
	RankedBy    RankSource                `json:"ranked_by"`
	Elapsed     time.Duration             `json:"elapsed"`
}

// DroppedBy counts dropped items per reason.
func (r *BuildResult) DroppedBy() map[DropReason]int {
	out := make(map[DropReason]int)
	for _, d := range r.Dropped {
		out[d.Reason]++
	}
	return out
}

// Builder sequences discography, ranking, catalogue matching and playlist
// creation.
type Builder struct {
	artists    *resolve.ArtistResolver
	disco      *discography.Engine
	popularity provider.Popularity
	matcher    *catalogue.Matcher
	catalogue  provider.Catalogue
	bus        *event.Bus
	logger     *slog.Logger
	now        func() time.Time
}

// NewBuilder creates a Builder. bus may be nil.
func NewBuilder(artists *resolve.ArtistResolver, disco *discography.Engine, popularity provider.Popularity, matcher *catalogue.Matcher, cat provider.Catalogue, bus *event.Bus, logger *slog.Logger) *Builder {
	return &Builder{
		artists:    artists,
		disco:      disco,
		popularity: popularity,
		matcher:    matcher,
		catalogue:  cat,
		bus:        bus,
		logger:     logger.With(slog.String("component", "playlist")),
		now:        time.Now,
	}
}

// Build runs the whole pipeline, reporting each stage to progress (which
// may be nil). Cancellation is returned as the context error.
func (b *Builder) Build(ctx context.Context, req BuildRequest, progress ProgressFunc) (*BuildResult, error) {
	report := func(p Progress) {
		b.bus.Publish(event.Event{Type: event.PlaylistProgress, Data: p.data()})
		if progress != nil {
			progress(p)
		}
	}

	res, err := b.build(ctx, req, report)
	if err != nil {
		if ctx.Err() == nil && !provider.IsCanceled(err) {
			b.bus.Publish(event.Event{Type: event.PlaylistFailed, Data: map[string]any{
				"artist": req.ArtistName,
				"error":  err.Error(),
			}})
		}
		return nil, err
	}
	b.bus.Publish(event.Event{Type: event.PlaylistCompleted, Data: map[string]any{
		"name":        res.Name,
		"tracks":      res.TrackCount,
		"dropped":     len(res.Dropped),
		"playlist_id": res.PlaylistID,
		"dry_run":     req.DryRun,
	}})
	return res, nil
}

func (b *Builder) build(ctx context.Context, req BuildRequest, report ProgressFunc) (*BuildResult, error) {
	start := b.now()
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	report(Progress{Stage: StageFetchingDiscography})
	primary, co, err := b.resolveArtists(ctx, req)
	if err != nil {
		return nil, err
	}
	var disc *discography.Result
	if req.Mode == ModeCoCredit {
		disc, err = b.disco.FetchCoCredit(ctx, primary, co, req.MatchMode)
	} else {
		disc, err = b.disco.FetchAll(ctx, primary)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching discography: %w", err)
	}

	report(Progress{Stage: StageRanking, Total: len(disc.Recordings)})
	ranked, source, err := b.rank(ctx, disc.Recordings, primary, co)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{RankedBy: source}
	keep := min(len(ranked), (req.TargetSize*3+1)/2)
	for _, r := range ranked[keep:] {
		res.drop(r, DropRankedOut)
	}
	ranked = ranked[:keep]

	report(Progress{Stage: StageResolving, Total: len(ranked)})
	matched, err := b.matcher.ResolveAll(ctx, ranked, func(settled, total int) {
		report(Progress{Stage: StageResolving, Resolved: settled, Total: total})
	})
	if err != nil {
		return nil, err
	}
	for _, m := range matched.Misses {
		res.drop(m.Recording, missReason(m.Reason))
	}

	tracks := dedupByURI(matched.Tracks, res)
	slices.SortStableFunc(tracks, func(x, y catalogue.ResolvedTrack) int {
		return cmp.Compare(popularityOf(y), popularityOf(x))
	})
	if len(tracks) > req.TargetSize {
		for _, t := range tracks[req.TargetSize:] {
			res.Dropped = append(res.Dropped, DroppedItem{RecordingID: t.RecordingID, Title: t.RecordingTitle, Reason: DropTruncated})
		}
		tracks = tracks[:req.TargetSize]
	}
	if len(tracks) == 0 {
		return nil, ErrNoTracksResolved
	}

	res.Tracks = tracks
	res.TrackCount = len(tracks)
	res.Name = req.Name
	if res.Name == "" {
		res.Name = defaultName(req, primary, co)
	}

	if !req.DryRun {
		report(Progress{Stage: StageCreating, TrackCount: len(tracks)})
		if err := b.create(ctx, req, res); err != nil {
			return nil, err
		}
	}

	res.Elapsed = b.now().Sub(start)
	report(Progress{Stage: StageComplete, Name: res.Name, TrackCount: res.TrackCount})
	b.logger.Info("playlist built",
		slog.String("name", res.Name),
		slog.Int("tracks", res.TrackCount),
		slog.Int("dropped", len(res.Dropped)),
		slog.String("ranked_by", string(res.RankedBy)),
		slog.Bool("dry_run", req.DryRun),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

func normalizeRequest(req BuildRequest) (BuildRequest, error) {
	req.ArtistName = strings.TrimSpace(req.ArtistName)
	req.CoArtistName = strings.TrimSpace(req.CoArtistName)
	if req.Mode == "" {
		req.Mode = ModeSingle
		if req.CoArtistName != "" || req.CoArtistID != "" {
			req.Mode = ModeCoCredit
		}
	}
	if req.TargetSize <= 0 {
		req.TargetSize = DefaultTargetSize
	}
	if req.ArtistName == "" && req.ArtistID == "" {
		return req, errors.New("artist name or id is required")
	}
	switch req.Mode {
	case ModeSingle:
	case ModeCoCredit:
		if req.CoArtistName == "" && req.CoArtistID == "" {
			return req, errors.New("co-credit mode needs a second artist")
		}
	default:
		return req, fmt.Errorf("unknown build mode %q", req.Mode)
	}
	return req, nil
}

func (b *Builder) resolveArtists(ctx context.Context, req BuildRequest) (primary, co discography.Artist, err error) {
	primary, err = b.artist(ctx, req.ArtistID, req.ArtistName)
	if err != nil || req.Mode != ModeCoCredit {
		return primary, co, err
	}
	co, err = b.artist(ctx, req.CoArtistID, req.CoArtistName)
	return primary, co, err
}

func (b *Builder) artist(ctx context.Context, id, name string) (discography.Artist, error) {
	if id != "" {
		return discography.Artist{ID: id, Name: cmpOr(name, id)}, nil
	}
	m, err := b.artists.Resolve(ctx, name)
	if err != nil {
		return discography.Artist{}, err
	}
	return discography.Artist{ID: m.ID, Name: m.Name}, nil
}

func (b *Builder) create(ctx context.Context, req BuildRequest, res *BuildResult) error {
	pl, err := b.catalogue.CreatePlaylist(ctx, res.Name, req.Description, req.Public)
	if err != nil {
		return fmt.Errorf("creating playlist: %w", err)
	}
	uris := make([]string, len(res.Tracks))
	for i, t := range res.Tracks {
		uris[i] = t.URI
	}
	if err := b.catalogue.AddTracks(ctx, pl.ID, uris); err != nil {
		return fmt.Errorf("adding tracks to playlist %s: %w", pl.ID, err)
	}
	res.PlaylistID, res.PlaylistURL = pl.ID, pl.URL
	return nil
}

func (r *BuildResult) drop(rec discography.RecordingRel, reason DropReason) {
	r.Dropped = append(r.Dropped, DroppedItem{RecordingID: rec.ID, Title: rec.Title, Reason: reason})
}

func missReason(r catalogue.Reason) DropReason {
	switch r {
	case catalogue.ReasonMissingCredits:
		return DropMissingCredits
	case catalogue.ReasonRateLimited:
		return DropRateLimited
	default:
		return DropNoMatch
	}
}

// dedupByURI keeps the first (highest-ranked) track per catalogue URI.
func dedupByURI(tracks []catalogue.ResolvedTrack, res *BuildResult) []catalogue.ResolvedTrack {
	seen := make(map[string]bool, len(tracks))
	out := make([]catalogue.ResolvedTrack, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.URI] {
			res.Dropped = append(res.Dropped, DroppedItem{RecordingID: t.RecordingID, Title: t.RecordingTitle, Reason: DropDuplicateURI})
			continue
		}
		seen[t.URI] = true
		out = append(out, t)
	}
	return out
}

// popularityOf orders unknown popularity after every known value.
func popularityOf(t catalogue.ResolvedTrack) int {
	if t.Popularity == nil {
		return -1
	}
	return *t.Popularity
}

func defaultName(req BuildRequest, primary, co discography.Artist) string {
	if req.Mode == ModeCoCredit {
		return primary.Name + " × " + co.Name
	}
	return "This Is " + primary.Name
}
