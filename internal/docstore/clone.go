package docstore

import "sort"

// Deep copies keep callers from mutating table rows behind the lock.

func cloneJourney(j *Journey) *Journey {
	c := *j
	if j.FocusAreas != nil {
		c.FocusAreas = append([]string(nil), j.FocusAreas...)
	}
	if j.Meta != nil {
		c.Meta = make(map[string]any, len(j.Meta))
		for k, v := range j.Meta {
			c.Meta[k] = v
		}
	}
	if j.Stages != nil {
		c.Stages = make([]Stage, len(j.Stages))
		for i := range j.Stages {
			c.Stages[i] = cloneStage(&j.Stages[i])
		}
	}
	return &c
}

func cloneStage(s *Stage) Stage {
	c := *s
	if s.Tasks != nil {
		c.Tasks = append([]Task(nil), s.Tasks...)
	}
	return c
}

func cloneAttribute(a *HeroAttribute) *HeroAttribute {
	c := *a
	if a.Meta != nil {
		c.Meta = make(map[string]any, len(a.Meta))
		for k, v := range a.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// Map iteration order is random; list results are sorted so callers see
// stable output.

func sortJourneys(list []*Journey) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt != list[j].UpdatedAt {
			return list[i].UpdatedAt > list[j].UpdatedAt
		}
		return list[i].ID < list[j].ID
	})
}

func sortTasks(list []*Task) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StageID != list[j].StageID {
			return list[i].StageID < list[j].StageID
		}
		return list[i].ID < list[j].ID
	})
}

func sortHabits(list []*Habit) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

func sortCompletions(list []*HabitCompletion) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CompletedAt != list[j].CompletedAt {
			return list[i].CompletedAt < list[j].CompletedAt
		}
		return list[i].ID < list[j].ID
	})
}

func sortAttributes(list []*HeroAttribute) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

func sortHistory(list []*AttributeHistory) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].At != list[j].At {
			return list[i].At < list[j].At
		}
		return list[i].ID < list[j].ID
	})
}

func sortGoals(list []*AttributeGoal) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
