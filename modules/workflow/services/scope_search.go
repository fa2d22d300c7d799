package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/pkg/logging"
)

type SearchState string

const (
	SearchIdle     SearchState = "idle"
	SearchPending  SearchState = "pending"
	SearchInFlight SearchState = "in_flight"
	SearchApplied  SearchState = "applied"
)

// scheduleFunc runs f after d and returns a stop function reporting whether
// it prevented f from running.
type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type ScopeSearchConfig struct {
	Service   assignment.ScopeSearchService
	MinLength int
	Debounce  time.Duration
	Timeout   time.Duration
	Logger    *logrus.Entry
	// BaseContext carries request-independent values, e.g. the database
	// pool, into queries. Defaults to context.Background.
	BaseContext context.Context
}

// SearchView is the visible state of a ScopeSearch.
type SearchView struct {
	Term       string
	State      SearchState
	Generation uint64
	Results    []assignment.Scope
	// Err is set when the last applied query failed; Results is then empty.
	Err       error
	Discarded uint64
}

// ScopeSearch turns keystrokes into debounced scope queries. Every Input
// bumps a generation counter; a response is applied only while its
// generation is still the latest, so out of order responses never overwrite
// newer results.
type ScopeSearch struct {
	service   assignment.ScopeSearchService
	minLength int
	debounce  time.Duration
	timeout   time.Duration
	log       *logrus.Entry
	schedule  scheduleFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	term      string
	gen       uint64
	stop      func() bool
	state     SearchState
	results   []assignment.Scope
	err       error
	discarded uint64
	closed    bool
}

func NewScopeSearch(cfg ScopeSearchConfig) *ScopeSearch {
	return newScopeSearch(cfg, afterFunc)
}

func newScopeSearch(cfg ScopeSearchConfig, schedule scheduleFunc) *ScopeSearch {
	if cfg.MinLength < 1 {
		cfg.MinLength = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	return &ScopeSearch{
		service:   cfg.Service,
		minLength: cfg.MinLength,
		debounce:  cfg.Debounce,
		timeout:   cfg.Timeout,
		log:       log,
		schedule:  schedule,
		ctx:       ctx,
		cancel:    cancel,
		state:     SearchIdle,
	}
}

// Input records the current search text. Text shorter than the minimum
// length clears the results and schedules nothing; otherwise a query is
// scheduled after the debounce window, replacing any query still waiting.
func (s *ScopeSearch) Input(term string) SearchView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.viewLocked()
	}

	s.term = term
	s.gen++
	s.cancelPendingLocked()

	if utf8.RuneCountInString(strings.TrimSpace(term)) < s.minLength {
		s.state = SearchIdle
		s.results = nil
		s.err = nil
		return s.viewLocked()
	}

	s.state = SearchPending
	gen := s.gen
	s.wg.Add(1)
	s.stop = s.schedule(s.debounce, func() {
		defer s.wg.Done()
		s.fire(gen)
	})
	return s.viewLocked()
}

func (s *ScopeSearch) cancelPendingLocked() {
	if s.stop == nil {
		return
	}
	if s.stop() {
		s.wg.Done()
	}
	s.stop = nil
}

func (s *ScopeSearch) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stop = nil
	s.state = SearchInFlight
	term := strings.TrimSpace(s.term)
	s.mu.Unlock()

	getMetrics().searchQueriesTotal.Inc()
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
	}
	results, err := s.service.Search(ctx, term)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.discarded++
		getMetrics().searchStaleTotal.Inc()
		return
	}
	s.state = SearchApplied
	if err != nil {
		s.log.WithError(err).WithField("term", term).Warn("scope search failed")
		s.results = nil
		s.err = fmt.Errorf("%w: %w", assignment.ErrSearchUnavailable, err)
		return
	}
	s.results = results
	s.err = nil
}

func (s *ScopeSearch) Results() SearchView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *ScopeSearch) viewLocked() SearchView {
	return SearchView{
		Term:       s.term,
		State:      s.state,
		Generation: s.gen,
		Results:    slices.Clone(s.results),
		Err:        s.err,
		Discarded:  s.discarded,
	}
}

// Close cancels any scheduled or running query and waits for it to return.
func (s *ScopeSearch) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.cancelPendingLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
