package extraction

import (
	"strings"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/rules"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

// WorkItemPatch holds the fields a turn changes. Nil scalars and nil lists
// leave the item untouched; lists hold the full merged value.
type WorkItemPatch struct {
	WorkDescription   *string
	HazardDescription *string
	RiskLevel         *int
	WhyDangerous      []string
	Countermeasures   []store.Countermeasure
}

// IsEmpty reports whether the patch changes nothing.
func (p WorkItemPatch) IsEmpty() bool {
	return p.WorkDescription == nil &&
		p.HazardDescription == nil &&
		p.RiskLevel == nil &&
		p.WhyDangerous == nil &&
		p.Countermeasures == nil
}

// Apply returns a copy of item with the patch applied.
func (p WorkItemPatch) Apply(item store.WorkItem) store.WorkItem {
	out := item.Clone()
	if p.WorkDescription != nil {
		out.WorkDescription = *p.WorkDescription
	}
	if p.HazardDescription != nil {
		out.HazardDescription = *p.HazardDescription
	}
	if p.RiskLevel != nil {
		out.RiskLevel = *p.RiskLevel
	}
	if p.WhyDangerous != nil {
		out.WhyDangerous = append([]string(nil), p.WhyDangerous...)
	}
	if p.Countermeasures != nil {
		out.Countermeasures = append([]store.Countermeasure(nil), p.Countermeasures...)
	}
	return out
}

// MergeResult is the outcome of folding one turn into the current item.
type MergeResult struct {
	WorkItemPatch        WorkItemPatch
	ActionGoal           *string
	ShouldCommitWorkItem bool
}

// Merge folds extracted into current. It never clears a field, only appends
// genuinely new list entries, and never derives one field from another.
// The commit flag needs both the model's intent and local completeness.
func Merge(current store.WorkItem, extracted *ExtractedData) MergeResult {
	var result MergeResult
	if extracted == nil {
		return result
	}

	patch := &result.WorkItemPatch
	if v, ok := nonBlank(extracted.WorkDescription); ok {
		patch.WorkDescription = &v
	}
	if v, ok := nonBlank(extracted.HazardDescription); ok {
		patch.HazardDescription = &v
	}
	if extracted.RiskLevel != nil && rules.ValidRiskLevel(*extracted.RiskLevel) {
		level := *extracted.RiskLevel
		patch.RiskLevel = &level
	}
	if merged, changed := unionStrings(current.WhyDangerous, extracted.WhyDangerous); changed {
		patch.WhyDangerous = merged
	}
	if merged, changed := unionCountermeasures(current.Countermeasures, extracted.Countermeasures); changed {
		patch.Countermeasures = merged
	}

	if v, ok := nonBlank(extracted.ActionGoal); ok {
		result.ActionGoal = &v
	}

	if CommitIntent(extracted.NextAction) {
		next := patch.Apply(current)
		result.ShouldCommitWorkItem = rules.IsWorkItemComplete(&next)
	}
	return result
}

func nonBlank(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

func unionStrings(existing, incoming []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := append([]string(nil), existing...)
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	changed := false
	for _, raw := range incoming {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		changed = true
	}
	return out, changed
}

func unionCountermeasures(existing []store.Countermeasure, incoming []Countermeasure) ([]store.Countermeasure, bool) {
	seen := make(map[store.Countermeasure]struct{}, len(existing)+len(incoming))
	out := append([]store.Countermeasure(nil), existing...)
	for _, cm := range existing {
		seen[cm] = struct{}{}
	}
	changed := false
	for _, raw := range incoming {
		cm := store.Countermeasure{
			Category: store.CountermeasureCategory(raw.Category),
			Text:     strings.TrimSpace(raw.Text),
		}
		if cm.Text == "" {
			continue
		}
		if _, dup := seen[cm]; dup {
			continue
		}
		seen[cm] = struct{}{}
		out = append(out, cm)
		changed = true
	}
	return out, changed
}
