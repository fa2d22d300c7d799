package assignment

import "maps"

// Item is an assignable unit: a billable entity of a client.
type Item struct {
	ID       string
	Name     string
	Kind     string
	Metadata map[string]string
}

func (i Item) clone() Item {
	i.Metadata = maps.Clone(i.Metadata)
	return i
}

// Scope is the parent an assignment belongs to, e.g. a client.
type Scope struct {
	ID       string
	Name     string
	Metadata map[string]string
}

// AssignedStep is an item placed in the ordered sequence.
//
// StepID is the durable id handed out by the persistence layer. It is empty
// while Pending is true, i.e. until a save confirms the step.
type AssignedStep struct {
	Item
	StepID  string
	Order   int
	Active  bool
	Pending bool
}

func (s AssignedStep) clone() AssignedStep {
	s.Item = s.Item.clone()
	return s
}

// StepRecord is the persisted form of one sequence entry.
type StepRecord struct {
	ItemID string `json:"item_id"`
	StepID string `json:"step_id,omitempty"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

// SavedStep pairs an item with the durable step id the gateway assigned.
type SavedStep struct {
	ItemID string
	StepID string
}

func itemKey(i Item) string         { return i.ID }
func stepKey(s AssignedStep) string { return s.ID }

func newStep(i Item) AssignedStep {
	return AssignedStep{Item: i, Active: true, Pending: true}
}

func bareItem(s AssignedStep) Item {
	return s.Item
}
