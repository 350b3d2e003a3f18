// Package rules holds the pure completeness predicates for work items.
package rules

import (
	"strings"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/textnorm"
)

// MinCountermeasures is the number of valid countermeasures a work item
// needs before it may be committed.
const MinCountermeasures = 2

// ValidRiskLevel reports whether level is within 1..5.
func ValidRiskLevel(level int) bool {
	return level >= 1 && level <= 5
}

// ValidCauses returns the whyDangerous entries that survive trim and
// non-answer filtering.
func ValidCauses(item *store.WorkItem) []string {
	if item == nil {
		return nil
	}
	var out []string
	for _, cause := range item.WhyDangerous {
		if textnorm.IsMeaningful(cause) {
			out = append(out, strings.TrimSpace(cause))
		}
	}
	return out
}

// CountValidCountermeasures counts countermeasures with a real answer.
// Duplicate categories are allowed.
func CountValidCountermeasures(item *store.WorkItem) int {
	if item == nil {
		return 0
	}
	n := 0
	for _, cm := range item.Countermeasures {
		if textnorm.IsMeaningful(cm.Text) {
			n++
		}
	}
	return n
}

// DistinctCategories counts categories among valid countermeasures.
func DistinctCategories(item *store.WorkItem) int {
	if item == nil {
		return 0
	}
	seen := make(map[store.CountermeasureCategory]struct{})
	for _, cm := range item.Countermeasures {
		if textnorm.IsMeaningful(cm.Text) {
			seen[cm.Category] = struct{}{}
		}
	}
	return len(seen)
}

// IsHazardSectionComplete is true when work, hazard, risk level and at
// least one real cause are present.
func IsHazardSectionComplete(item *store.WorkItem) bool {
	if item == nil {
		return false
	}
	if strings.TrimSpace(item.WorkDescription) == "" {
		return false
	}
	if strings.TrimSpace(item.HazardDescription) == "" {
		return false
	}
	if !ValidRiskLevel(item.RiskLevel) {
		return false
	}
	return len(ValidCauses(item)) > 0
}

// IsWorkItemComplete is true when the hazard section is complete and the
// item has at least MinCountermeasures real countermeasures.
func IsWorkItemComplete(item *store.WorkItem) bool {
	return IsHazardSectionComplete(item) && CountValidCountermeasures(item) >= MinCountermeasures
}

// MissingFields lists what is still needed, in the order the interview asks.
func MissingFields(item *store.WorkItem) []store.NextAction {
	if item == nil {
		item = &store.WorkItem{}
	}
	var missing []store.NextAction
	if strings.TrimSpace(item.WorkDescription) == "" {
		missing = append(missing, store.NextAskWork)
	}
	if strings.TrimSpace(item.HazardDescription) == "" {
		missing = append(missing, store.NextAskHazard)
	}
	if len(ValidCauses(item)) == 0 {
		missing = append(missing, store.NextAskWhy)
	}
	if !ValidRiskLevel(item.RiskLevel) {
		missing = append(missing, store.NextAskRiskLevel)
	}
	if CountValidCountermeasures(item) < MinCountermeasures {
		missing = append(missing, store.NextAskCountermeasure)
	}
	return missing
}
