package models

import "time"

type Client struct {
	ID    string
	Name  string
	Phone string
}

type BillableEntity struct {
	ID       string
	ClientID string
	Name     string
	Kind     string
	Phone    string
}

type WorkflowStep struct {
	ID        string
	ClientID  string
	EntityID  string
	Name      string
	Kind      string
	Position  int
	Active    bool
	UpdatedAt time.Time
}

// CachedItem is the JSON form of an item kept in the catalog cache.
type CachedItem struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
