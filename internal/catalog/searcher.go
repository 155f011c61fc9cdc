package catalog

import (
	"context"
	"sync"
	"time"

	"stationpos/backend/internal/domain"
)

const DebounceDelay = 300 * time.Millisecond

type LookupFunc func(ctx context.Context, term string) ([]domain.Article, error)

type Result struct {
	Seq      uint64
	Term     string
	Articles []domain.Article
	Err      error
}

// Searcher is the terminal-side debouncer for clients that embed this
// package (a till front end talking to Lookup or to GET /api/v1/articles);
// the server itself never builds one.
//
// Searcher debounces keystrokes into lookups. Every Query bumps a sequence
// number; a lookup result is delivered only if its sequence is still the
// latest when it resolves, so a slow early response never overwrites a
// newer one.
type Searcher struct {
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	delay     time.Duration
	lookup    LookupFunc
	onResults func(Result)
	timer     *time.Timer
	seq       uint64
	closed    bool
}

func NewSearcher(lookup LookupFunc, onResults func(Result), delay time.Duration) *Searcher {
	if delay <= 0 {
		delay = DebounceDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Searcher{
		ctx:       ctx,
		cancel:    cancel,
		delay:     delay,
		lookup:    lookup,
		onResults: onResults,
	}
}

func (s *Searcher) Query(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { s.run(seq, term) })
}

// Latest returns the sequence number of the most recent query.
func (s *Searcher) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
}

func (s *Searcher) run(seq uint64, term string) {
	if !s.isCurrent(seq) {
		return
	}
	articles, err := s.lookup(s.ctx, term)
	if !s.isCurrent(seq) {
		return
	}
	s.onResults(Result{Seq: seq, Term: term, Articles: articles, Err: err})
}

func (s *Searcher) isCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && seq == s.seq
}
