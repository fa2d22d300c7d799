package viewmodels

type Item struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     string            `json:"kind,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Step struct {
	Item
	StepID  string `json:"step_id,omitempty"`
	Order   int    `json:"order"`
	Active  bool   `json:"active"`
	Pending bool   `json:"pending"`
}

type Snapshot struct {
	ScopeID  string `json:"scope_id"`
	Pool     []Item `json:"pool"`
	Sequence []Step `json:"sequence"`
	Revision uint64 `json:"revision"`
}

type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Editor struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	ScopeID   string    `json:"scope_id,omitempty"`
	Dirty     bool      `json:"dirty"`
	Saving    bool      `json:"saving"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	LoadError *Problem  `json:"load_error,omitempty"`
	SaveError *Problem  `json:"save_error,omitempty"`
	Dropped   []string  `json:"dropped,omitempty"`
}

type Scope struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Search struct {
	Term       string   `json:"term"`
	State      string   `json:"state"`
	Generation uint64   `json:"generation"`
	Results    []Scope  `json:"results"`
	Error      *Problem `json:"error,omitempty"`
}
