package services

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/pkg/eventbus"
)

// EventLogHandler writes workflow domain events to the application log.
type EventLogHandler struct {
	log *logrus.Logger
}

func NewEventLogHandler(log *logrus.Logger) *EventLogHandler {
	return &EventLogHandler{log: log}
}

func (h *EventLogHandler) Register(bus eventbus.EventBus) {
	bus.Subscribe(h.onScopeSelected)
	bus.Subscribe(h.onSequenceSaved)
	bus.Subscribe(h.onSaveFailed)
}

func (h *EventLogHandler) onScopeSelected(e *assignment.ScopeSelectedEvent) {
	h.log.WithFields(logrus.Fields{
		"event":         "workflow.scope_selected",
		"scope_id":      e.ScopeID,
		"pool_size":     e.PoolSize,
		"sequence_size": e.SequenceSize,
		"dropped":       len(e.Dropped),
	}).Info("scope selected")
}

func (h *EventLogHandler) onSequenceSaved(e *assignment.SequenceSavedEvent) {
	h.log.WithFields(logrus.Fields{
		"event":    "workflow.sequence_saved",
		"scope_id": e.ScopeID,
		"steps":    len(e.Steps),
		"revision": e.Revision,
	}).Info("sequence saved")
}

func (h *EventLogHandler) onSaveFailed(e *assignment.SaveFailedEvent) {
	h.log.WithFields(logrus.Fields{
		"event":    "workflow.save_failed",
		"scope_id": e.ScopeID,
		"revision": e.Revision,
	}).WithError(e.Err).Error("sequence save failed")
}
