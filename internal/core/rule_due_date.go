package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// Bounds for the plausible gestation window, in days. Cycles whose planned
// due date falls outside start+[min,max] are considered corrupt.
const (
	minGestationDays = 30
	maxGestationDays = 365
)

// DueDateWindowRule blocks cycles whose planned due date is not a plausible
// gestation length after the start date.
func DueDateWindowRule() domain.Rule {
	return dueDateWindowRule{}
}

type dueDateWindowRule struct{}

func (dueDateWindowRule) Name() string { return "due_date_window" }

func (dueDateWindowRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBreedingCycle {
			continue
		}
		cycle, ok := asCycle(change.After)
		if !ok || cycle.State != domain.CycleActive {
			continue
		}
		days := cycle.StartDate.DaysUntil(cycle.PlannedDueDate)
		if days < minGestationDays || days > maxGestationDays {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "due_date_window",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cycle %s has an implausible gestation of %d days", cycle.ID, days),
				Entity:   domain.EntityBreedingCycle,
				EntityID: cycle.ID,
			})
		}
	}
	return res, nil
}
