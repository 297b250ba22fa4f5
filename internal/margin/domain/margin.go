package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
)

type Scope string

const (
	ScopeAll               Scope = "all"
	ScopeActivitiesOnly    Scope = "activities_only"
	ScopeSubActivitiesOnly Scope = "subactivities_only"
)

func (s Scope) Label() string {
	switch s {
	case ScopeActivitiesOnly:
		return "Activities Only"
	case ScopeSubActivitiesOnly:
		return "Sub-activities Only"
	default:
		return "All Activities and Sub-activities"
	}
}

func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeActivitiesOnly, ScopeSubActivitiesOnly:
		return true
	}
	return false
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrMarginRange  = apperror.Validation("margin_out_of_range", "Margin must be between 0% and 100%!")
	ErrInvalidScope = apperror.Validation("invalid_margin_scope", "scope must be all, activities_only or subactivities_only")
)

// Request sets one margin across a BOQ. A nil Override means true.
type Request struct {
	BoqID         snowflake.ID `json:"boq_id"`
	MarginPercent float64      `json:"margin_percent"`
	Scope         Scope        `json:"apply_to"`
	Override      *bool        `json:"override_existing"`
}

type Result struct {
	Boq                  *boqdomain.Project `json:"boq"`
	Message              string             `json:"message"`
	ActivitiesUpdated    int                `json:"activities_updated"`
	SubActivitiesUpdated int                `json:"subactivities_updated"`
}

type Service interface {
	Apply(ctx context.Context, req Request) (*Result, error)
}

func Validate(margin float64, scope Scope) error {
	if margin < 0 || margin > 100 {
		return ErrMarginRange
	}
	if !scope.Valid() {
		return ErrInvalidScope
	}
	return nil
}

// Apply always sets the BOQ margin, then the activities and/or
// sub-activities in scope. Without override only zero margins are filled.
func Apply(boq *boqdomain.Project, margin float64, scope Scope, override bool) (activities, subs int) {
	boq.MarginPercent = margin
	for _, a := range boq.Activities {
		if scope != ScopeSubActivitiesOnly && (override || a.MarginPercent == 0) {
			a.MarginPercent = margin
			activities++
		}
		if scope == ScopeActivitiesOnly {
			continue
		}
		for _, sub := range a.SubActivities {
			if override || sub.MarginPercent == 0 {
				sub.MarginPercent = margin
				subs++
			}
		}
	}
	return activities, subs
}

func Message(margin float64, scope Scope) string {
	return fmt.Sprintf("Margin of %s%% has been applied to %s.", boqdomain.FormatPercent(margin), scope.Label())
}
