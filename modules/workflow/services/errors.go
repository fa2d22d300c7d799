package services

import "github.com/iota-uz/workflow-console/pkg/serrors"

var (
	ErrLoadSuperseded  = serrors.NewError("LOAD_SUPERSEDED", "a newer scope selection replaced this one", "Workflow.Errors.LoadSuperseded")
	ErrSaveSuperseded  = serrors.NewError("SAVE_SUPERSEDED", "a newer save replaced this one", "Workflow.Errors.SaveSuperseded")
	ErrSessionNotFound = serrors.NewError("SESSION_NOT_FOUND", "editor session not found", "Workflow.Errors.SessionNotFound")
	ErrTooManySessions = serrors.NewError("TOO_MANY_SESSIONS", "too many open editor sessions", "Workflow.Errors.TooManySessions")
)
