package ghclient

import (
	"sync"
	"time"

	"github.com/google/go-github/v68/github"
)

// RateLimitState is the snapshot surfaced to callers deciding whether to
// hold off on another hosted call.
type RateLimitState struct {
	Remaining int
	ResetAt   time.Time
}

// rateLimitState is updated from each response's x-ratelimit-* headers,
// which go-github parses into resp.Rate. A response without them resets
// the state to 5000 remaining and no reset time.
type rateLimitState struct {
	mu    sync.Mutex
	state RateLimitState
}

func (s *rateLimitState) update(resp *github.Response) {
	if resp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.Response == nil || resp.Header.Get("X-RateLimit-Remaining") == "" {
		s.state = RateLimitState{Remaining: 5000}
		return
	}
	s.state = RateLimitState{
		Remaining: resp.Rate.Remaining,
		ResetAt:   resp.Rate.Reset.Time,
	}
}

func (s *rateLimitState) snapshot() RateLimitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Allow reports whether the next call should proceed given the last
// observed rate-limit state.
func (s RateLimitState) Allow(now time.Time) bool {
	if s.ResetAt.IsZero() {
		return true
	}
	if s.Remaining > 0 {
		return true
	}
	return now.After(s.ResetAt)
}
