package docstore

// baseAttributes is the attribute set every document store starts with.
// Level, XP and thresholds match a fresh hero profile.
var baseAttributes = []HeroAttribute{
	{
		ID:             AttributeKnowledge,
		Name:           "Knowledge",
		Level:          1,
		XP:             0,
		XPForNextLevel: 100,
		Area:           "mental",
		Description:    "How much you have absorbed through your studies",
		Icon:           "🧠",
	},
	{
		ID:             AttributeFocus,
		Name:           "Focus",
		Level:          1,
		XP:             0,
		XPForNextLevel: 100,
		Area:           "mental",
		Description:    "Your ability to hold concentration while studying",
		Icon:           "🎯",
	},
	{
		ID:             AttributeConsistency,
		Name:           "Consistency",
		Level:          1,
		XP:             0,
		XPForNextLevel: 100,
		Area:           "discipline",
		Description:    "How regular your study habit has been",
		Icon:           "📈",
	},
	{
		ID:             AttributeSpeed,
		Name:           "Speed",
		Level:          1,
		XP:             0,
		XPForNextLevel: 100,
		Area:           "skill",
		Description:    "How fast you process and retain new material",
		Icon:           "⚡",
	},
}

// EnsureDefaults seeds the singleton hero profile and the base attribute set
// when they are missing. It runs on every document-engine open, independent
// of any migration flag, so a store whose migrations already completed still
// comes up with a usable profile. Existing rows are never touched.
func (db *DB) EnsureDefaults() error {
	return db.Update(func(tx *Tx) error {
		if tx.HeroProfile() == nil {
			profile := &HeroProfile{
				HeroName:       "Study Hero",
				TotalXP:        0,
				Level:          1,
				XPForNextLevel: 100,
			}
			if err := tx.SaveHeroProfile(profile); err != nil {
				return err
			}
		}
		if len(tx.db.heroAttributes) == 0 {
			for i := range baseAttributes {
				attr := baseAttributes[i]
				if err := tx.UpsertAttribute(&attr); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
