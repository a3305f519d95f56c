package playlist

import "fmt"

// Stage is a step of a playlist build.
type Stage string

// Build stages, in order.
const (
	StageFetchingDiscography Stage = "fetching_discography"
	StageRanking             Stage = "ranking"
	StageResolving           Stage = "resolving"
	StageCreating            Stage = "creating"
	StageComplete            Stage = "complete"
)

// Progress reports where a build is. Only the fields relevant to Stage
// are set.
type Progress struct {
	Stage      Stage  `json:"stage"`
	Total      int    `json:"total,omitempty"`
	Resolved   int    `json:"resolved,omitempty"`
	TrackCount int    `json:"track_count,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ProgressFunc receives build progress.
type ProgressFunc func(Progress)

func (p Progress) String() string {
	switch p.Stage {
	case StageFetchingDiscography:
		return "fetching discography"
	case StageRanking:
		return fmt.Sprintf("ranking %d recordings", p.Total)
	case StageResolving:
		return fmt.Sprintf("resolving catalogue tracks %d/%d", p.Resolved, p.Total)
	case StageCreating:
		return fmt.Sprintf("creating playlist with %d tracks", p.TrackCount)
	case StageComplete:
		return fmt.Sprintf("created %q with %d tracks", p.Name, p.TrackCount)
	default:
		return string(p.Stage)
	}
}

func (p Progress) data() map[string]any {
	d := map[string]any{"stage": string(p.Stage)}
	switch p.Stage {
	case StageRanking:
		d["total"] = p.Total
	case StageResolving:
		d["resolved"] = p.Resolved
		d["total"] = p.Total
	case StageCreating:
		d["track_count"] = p.TrackCount
	case StageComplete:
		d["name"] = p.Name
		d["track_count"] = p.TrackCount
	}
	return d
}
