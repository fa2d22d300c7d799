package dtos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/workflow-console/pkg/constants"
	"github.com/iota-uz/workflow-console/pkg/serrors"
)

const (
	OpToSequence = "to_sequence"
	OpToPool     = "to_pool"
	OpReorder    = "reorder"
	OpToggle     = "toggle"
)

func fieldLocaleKey(field string) string {
	return fmt.Sprintf("Workflow.Fields.%s", field)
}

func validate(dto any) (serrors.ValidationErrors, bool) {
	err := constants.Validate.Struct(dto)
	if err == nil {
		return serrors.ValidationErrors{}, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return serrors.ValidationErrors{
			"_": serrors.NewError("VALIDATION_FAILED", err.Error(), ""),
		}, false
	}
	return serrors.ProcessValidatorErrors(verrs, fieldLocaleKey), false
}

// ScopesQuery is decoded from the query string of the scope lookup.
type ScopesQuery struct {
	Q     string `form:"q" json:"q" validate:"required,min=1,max=200"`
	Limit int    `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

func (d *ScopesQuery) Ok() (serrors.ValidationErrors, bool) {
	d.Q = strings.TrimSpace(d.Q)
	return validate(d)
}

type SearchInputDTO struct {
	Term string `json:"term" validate:"max=200"`
}

func (d *SearchInputDTO) Ok() (serrors.ValidationErrors, bool) {
	return validate(d)
}

type SelectScopeDTO struct {
	ScopeID string `json:"scope_id" validate:"required"`
}

func (d *SelectScopeDTO) Ok() (serrors.ValidationErrors, bool) {
	d.ScopeID = strings.TrimSpace(d.ScopeID)
	return validate(d)
}

// MoveDTO is one drag-and-drop gesture. TargetIndex is required for
// to_sequence and reorder and ignored otherwise.
type MoveDTO struct {
	Op          string `json:"op" validate:"required,oneof=to_sequence to_pool reorder toggle"`
	ItemID      string `json:"item_id" validate:"required"`
	TargetIndex *int   `json:"target_index" validate:"required_if=Op to_sequence,required_if=Op reorder"`
}

func (d *MoveDTO) Ok() (serrors.ValidationErrors, bool) {
	d.Op = strings.ToLower(strings.TrimSpace(d.Op))
	d.ItemID = strings.TrimSpace(d.ItemID)
	return validate(d)
}

func (d *MoveDTO) Index() int {
	if d.TargetIndex == nil {
		return 0
	}
	return *d.TargetIndex
}
