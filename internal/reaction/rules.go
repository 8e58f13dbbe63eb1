package reaction

import "github.com/p-n-ai/pai-compass/internal/lookup"

// Task types.
const (
	TaskVirtual = "Virtual"
	TaskIndoor  = "Indoor"
	TaskOutdoor = "Outdoor"
)

// Conditions are the on-site facts the task table decides on.
type Conditions struct {
	Bad  bool // rain, storm or too hot
	Good bool // fair weather with a known, bearable temperature
	Open bool
	Free bool
}

// Assess derives Conditions from a weather reading and a site's status.
func Assess(w lookup.Weather, hotF float64, open lookup.OpenStatus, fee lookup.FeeStatus) Conditions {
	hot := w.TempF != nil && *w.TempF > hotF
	bearable := w.TempF != nil && *w.TempF <= hotF

	c := Conditions{
		Open: open == lookup.StatusOpen,
		Free: fee == lookup.FeeFree,
	}
	switch w.Condition {
	case lookup.ConditionRainy, lookup.ConditionStormy:
		c.Bad = true
	case lookup.ConditionSunny, lookup.ConditionClear, lookup.ConditionCloudy:
		c.Good = bearable
	}
	if hot {
		c.Bad = true
	}
	return c
}

type taskRule struct {
	name     string
	taskType string
	match    func(c Conditions) bool
	text     func(t Templates) TaskText
	withLink bool
}

// taskRules is evaluated top-down; the first match wins. The last rule always
// matches.
var taskRules = []taskRule{
	{
		name:     "indoor",
		taskType: TaskIndoor,
		match:    func(c Conditions) bool { return c.Bad && c.Open && c.Free },
		text:     func(t Templates) TaskText { return t.Indoor },
	},
	{
		name:     "outdoor_observe",
		taskType: TaskOutdoor,
		match:    func(c Conditions) bool { return c.Good && (!c.Open || !c.Free) },
		text:     func(t Templates) TaskText { return t.OutdoorObserve },
	},
	{
		name:     "outdoor_guided",
		taskType: TaskOutdoor,
		match:    func(c Conditions) bool { return c.Good && c.Open && c.Free },
		text:     func(t Templates) TaskText { return t.OutdoorGuided },
	},
	{
		name:     "virtual_fallback",
		taskType: TaskVirtual,
		match:    func(Conditions) bool { return true },
		text:     func(t Templates) TaskText { return t.Fallback },
		withLink: true,
	},
}

// selectRule returns the first rule matching c.
func selectRule(c Conditions) taskRule {
	for _, r := range taskRules {
		if r.match(c) {
			return r
		}
	}
	return taskRules[len(taskRules)-1]
}
