package spotify

import (
	"errors"
	"testing"

	"golang.org/x/oauth2"
)

// sequenceSource hands out the given tokens in order, repeating the last.
type sequenceSource struct {
	tokens []string
	i      int
	err    error
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	t := &oauth2.Token{AccessToken: s.tokens[min(s.i, len(s.tokens)-1)]}
	s.i++
	return t, nil
}

func TestNotifyingSourceReportsRefreshesOnly(t *testing.T) {
	src := &sequenceSource{tokens: []string{"a", "a", "b", "b", "c"}}
	var seen []string
	ns := newNotifyingSource(src, &oauth2.Token{AccessToken: "a"}, func(t *oauth2.Token) {
		seen = append(seen, t.AccessToken)
	})

	for i := 0; i < 5; i++ {
		if _, err := ns.Token(); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if len(seen) != 2 || seen[0] != "b" || seen[1] != "c" {
		t.Errorf("notified %v, want [b c]", seen)
	}
}

func TestNotifyingSourcePassesErrors(t *testing.T) {
	want := errors.New("refresh failed")
	called := false
	ns := newNotifyingSource(&sequenceSource{err: want}, nil, func(*oauth2.Token) { called = true })

	if _, err := ns.Token(); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if called {
		t.Error("notify called on error")
	}
}
