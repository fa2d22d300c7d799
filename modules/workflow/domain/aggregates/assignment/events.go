package assignment

import "time"

type ScopeSelectedEvent struct {
	ScopeID      string
	PoolSize     int
	SequenceSize int
	Dropped      []string
	At           time.Time
}

type SequenceSavedEvent struct {
	ScopeID  string
	Steps    []StepRecord
	Revision uint64
	At       time.Time
}

type SaveFailedEvent struct {
	ScopeID  string
	Revision uint64
	Err      error
	At       time.Time
}
