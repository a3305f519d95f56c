package spotify

import (
	"sync"

	"golang.org/x/oauth2"
)

// notifyingSource reports each new access token from the wrapped source.
type notifyingSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	last   string
	notify func(*oauth2.Token)
}

func newNotifyingSource(src oauth2.TokenSource, initial *oauth2.Token, notify func(*oauth2.Token)) *notifyingSource {
	s := &notifyingSource{src: src, notify: notify}
	if initial != nil {
		s.last = initial.AccessToken
	}
	return s
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.AccessToken != s.last {
		s.last = t.AccessToken
		s.notify(t)
	}
	return t, nil
}
