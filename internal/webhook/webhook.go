// Package webhook posts selected bus events to configured endpoints, so a
// finished playlist build or maintenance run can ping a chat channel.
package webhook

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/sydlexius/linernotes/internal/event"
)

// Webhook types select the payload shape.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Webhook is one configured endpoint. An empty Events list subscribes to
// DefaultEvents.
type Webhook struct {
	Name   string       `yaml:"name" json:"name"`
	URL    string       `yaml:"url" json:"url"`
	Type   string       `yaml:"type" json:"type"`
	Events []event.Type `yaml:"events" json:"events,omitempty"`
}

// DefaultEvents are the outcomes worth a notification.
func DefaultEvents() []event.Type {
	return []event.Type{event.PlaylistCompleted, event.PlaylistFailed, event.MaintenanceCompleted}
}

// Validate checks the endpoint and fills in the defaults.
func (w *Webhook) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("webhook name is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook %s: invalid url %q", w.Name, w.URL)
	}
	switch w.Type {
	case "":
		w.Type = TypeGeneric
	case TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
	default:
		return fmt.Errorf("webhook %s: unknown type %q", w.Name, w.Type)
	}
	if len(w.Events) == 0 {
		w.Events = DefaultEvents()
	}
	for _, t := range w.Events {
		if !slices.Contains(event.AllTypes(), t) {
			return fmt.Errorf("webhook %s: unknown event %q", w.Name, t)
		}
	}
	return nil
}

func (w *Webhook) wants(t event.Type) bool {
	return slices.Contains(w.Events, t)
}
