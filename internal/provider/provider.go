package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AccessTier classifies a provider's access model.
type AccessTier string

// Access tier constants for classifying a provider's access model.
const (
	TierFree    AccessTier = "free"     // No key, no limit known
	TierFreeKey AccessTier = "free_key" // Free account/sign-up required
	TierOAuth   AccessTier = "oauth"    // User authorization required for writes
)

// RateLimitInfo documents the known rate limits for a provider.
type RateLimitInfo struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// ProviderCapability describes a provider's access model and documented rate limits.
type ProviderCapability struct {
	Tier      AccessTier     `json:"tier"`
	HelpURL   string         `json:"help_url,omitempty"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
	Timeout   time.Duration  `json:"timeout"`
}

// ProviderCapabilities returns the known capability metadata for each provider.
func ProviderCapabilities() map[ProviderName]ProviderCapability {
	return map[ProviderName]ProviderCapability{
		NameMusicBrainz: {
			Tier:      TierFree,
			RateLimit: &RateLimitInfo{RequestsPerSecond: 1, Burst: 1},
			Timeout:   20 * time.Second,
		},
		NameWikipedia: {
			Tier:      TierFree,
			RateLimit: &RateLimitInfo{RequestsPerSecond: 5, Burst: 2},
			Timeout:   15 * time.Second,
		},
		NameListenBrainz: {
			Tier:      TierFreeKey,
			HelpURL:   "https://listenbrainz.org/settings/",
			RateLimit: &RateLimitInfo{RequestsPerSecond: 2, Burst: 2},
			Timeout:   15 * time.Second,
		},
		NameSpotify: {
			Tier:      TierOAuth,
			HelpURL:   "https://developer.spotify.com/dashboard",
			RateLimit: &RateLimitInfo{RequestsPerSecond: 10, Burst: 5},
			Timeout:   30 * time.Second,
		},
	}
}

// ProviderName uniquely identifies a metadata provider.
type ProviderName string

// Known provider names.
const (
	NameMusicBrainz  ProviderName = "musicbrainz"
	NameWikipedia    ProviderName = "wikipedia"
	NameListenBrainz ProviderName = "listenbrainz"
	NameSpotify      ProviderName = "spotify"
)

// AllProviderNames returns all known provider names in display order.
func AllProviderNames() []ProviderName {
	return []ProviderName{
		NameMusicBrainz,
		NameWikipedia,
		NameListenBrainz,
		NameSpotify,
	}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameWikipedia:
		return "Wikipedia"
	case NameListenBrainz:
		return "ListenBrainz"
	case NameSpotify:
		return "Spotify"
	default:
		return string(n)
	}
}

// Provider is the part every adapter shares, used for connection checks.
type Provider interface {
	// Name returns the unique provider identifier.
	Name() ProviderName

	// RequiresAuth returns true if this provider needs credentials to function.
	RequiresAuth() bool

	// TestConnection performs a cheap request to verify reachability.
	TestConnection(ctx context.Context) error
}

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrRateLimited indicates the provider kept refusing requests after retries.
type ErrRateLimited struct {
	Provider   ProviderName
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited", e.Provider)
}

// ErrHTTPStatus is an unexpected, non-retryable HTTP status.
type ErrHTTPStatus struct {
	Provider ProviderName
	Code     int
	URL      string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("provider %s: unexpected HTTP %d", e.Provider, e.Code)
}

// ErrDecode indicates the response body could not be parsed.
type ErrDecode struct {
	Provider ProviderName
	Cause    error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("provider %s: decoding response: %v", e.Provider, e.Cause)
}

func (e *ErrDecode) Unwrap() error { return e.Cause }

// ErrNetwork is a transport-level failure (DNS, connection reset, timeout).
type ErrNetwork struct {
	Provider ProviderName
	Cause    error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrNetwork) Unwrap() error { return e.Cause }

// ErrAuthRequired indicates the provider needs credentials but none are configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: credentials not configured", e.Provider)
}

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// IsRateLimited reports whether err is (or wraps) an ErrRateLimited.
func IsRateLimited(err error) bool {
	var rl *ErrRateLimited
	return errors.As(err, &rl)
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
