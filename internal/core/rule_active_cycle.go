package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// SingleActiveCycleRule blocks commits that would leave one mother with more
// than one active breeding cycle.
func SingleActiveCycleRule() domain.Rule {
	return singleActiveCycleRule{}
}

type singleActiveCycleRule struct{}

func (singleActiveCycleRule) Name() string { return "single_active_cycle" }

func (singleActiveCycleRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := false
	for _, change := range changes {
		if change.Entity == domain.EntityBreedingCycle {
			touched = true
			break
		}
	}
	res := domain.Result{}
	if !touched {
		return res, nil
	}

	activeByMother := make(map[string][]string)
	for _, cycle := range view.ListBreedingCycles() {
		if cycle.State != domain.CycleActive {
			continue
		}
		tag := cycle.MotherRef.TagNumber
		activeByMother[tag] = append(activeByMother[tag], cycle.ID)
	}
	for tag, ids := range activeByMother {
		if len(ids) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_active_cycle",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("mother %s has %d active cycles", tag, len(ids)),
				Entity:   domain.EntityBreedingCycle,
				EntityID: ids[1],
			})
		}
	}
	return res, nil
}
