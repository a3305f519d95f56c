package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sydlexius/linernotes/internal/event"
)

// formatPayload returns the request body and content-type for a delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"event":     string(e.Type),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	})
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	color := 3447003 // blue
	if e.Type == event.PlaylistFailed {
		color = 15158332 // red
	}
	body, _ := json.Marshal(map[string]any{
		"embeds": []map[string]any{{
			"title":       "Liner Notes: " + string(e.Type),
			"description": describe(e),
			"color":       color,
			"timestamp":   e.Timestamp.UTC().Format(time.RFC3339),
		}},
	})
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*Liner Notes: %s*\n%s", e.Type, describe(e)),
	})
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"title":   "Liner Notes: " + string(e.Type),
		"message": describe(e),
	})
	return body, "application/json"
}

// describe renders a one-line summary for the chat formats.
func describe(e event.Event) string {
	d := e.Data
	if d == nil {
		return string(e.Type)
	}
	switch e.Type {
	case event.PlaylistCompleted:
		if d["dry_run"] == true {
			return fmt.Sprintf("Dry run of %q resolved %v tracks (%v left out)", d["name"], d["tracks"], d["dropped"])
		}
		return fmt.Sprintf("Created %q with %v tracks (%v left out)", d["name"], d["tracks"], d["dropped"])
	case event.PlaylistFailed:
		return fmt.Sprintf("Playlist for %v failed: %v", d["artist"], d["error"])
	case event.MaintenanceCompleted:
		return fmt.Sprintf("Purged %v expired cache entries", d["purged"])
	}
	b, _ := json.Marshal(d)
	return string(b)
}
