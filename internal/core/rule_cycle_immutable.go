package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// CompletedCycleImmutableRule blocks every mutation of a completed cycle
// except note corrections.
func CompletedCycleImmutableRule() domain.Rule {
	return completedCycleImmutableRule{}
}

type completedCycleImmutableRule struct{}

func (completedCycleImmutableRule) Name() string { return "completed_cycle_immutable" }

func (completedCycleImmutableRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBreedingCycle || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := asCycle(change.Before)
		if !ok || before.State != domain.CycleCompleted {
			continue
		}
		after, ok := asCycle(change.After)
		if !ok {
			continue
		}
		if !onlyNoteChanged(before, after) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "completed_cycle_immutable",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("completed cycle %s accepts only note changes", before.ID),
				Entity:   domain.EntityBreedingCycle,
				EntityID: before.ID,
			})
		}
	}
	return res, nil
}

func onlyNoteChanged(before, after BreedingCycle) bool {
	normalized := after
	normalized.Note = before.Note
	normalized.UpdatedAt = before.UpdatedAt
	return cyclesEqual(normalized, before)
}

func cyclesEqual(a, b BreedingCycle) bool {
	if a.Base != b.Base ||
		a.MotherRef != b.MotherRef ||
		a.FatherRef != b.FatherRef ||
		a.StartDate != b.StartDate ||
		a.PlannedDueDate != b.PlannedDueDate ||
		a.OffspringCount != b.OffspringCount ||
		a.Note != b.Note ||
		a.State != b.State {
		return false
	}
	if (a.ActualCompletionDate == nil) != (b.ActualCompletionDate == nil) {
		return false
	}
	if a.ActualCompletionDate != nil && *a.ActualCompletionDate != *b.ActualCompletionDate {
		return false
	}
	if len(a.OffspringIDs) != len(b.OffspringIDs) {
		return false
	}
	for i := range a.OffspringIDs {
		if a.OffspringIDs[i] != b.OffspringIDs[i] {
			return false
		}
	}
	return true
}

func asCycle(v any) (BreedingCycle, bool) {
	cycle, ok := v.(BreedingCycle)
	return cycle, ok
}
