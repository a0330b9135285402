package engagement

// HealthMilestone is one step of physical recovery after quitting.
type HealthMilestone struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Days        int    `json:"days"`
}

// healthMilestones is ordered by Days. Achievements reference milestones
// by ID and compare ordinals, so day thresholds may be tuned freely as
// long as the order holds.
var healthMilestones = []HealthMilestone{
	{ID: "oxygen", Title: "Oxygen Restored", Days: 1,
		Description: "Carbon monoxide has left your blood and oxygen levels are back to normal."},
	{ID: "nicotine_free", Title: "Nicotine Free", Days: 2,
		Description: "Nicotine is out of your body and nerve endings for taste and smell start to regrow."},
	{ID: "breathing", Title: "Easier Breathing", Days: 3,
		Description: "Bronchial tubes relax and breathing gets easier."},
	{ID: "circulation", Title: "Better Circulation", Days: 14,
		Description: "Circulation improves and walking gets easier."},
	{ID: "lung_function", Title: "Stronger Lungs", Days: 30,
		Description: "Lung function has noticeably increased."},
	{ID: "cilia", Title: "Cleaner Airways", Days: 90,
		Description: "Cilia in the lungs have regrown and clear mucus again."},
	{ID: "less_coughing", Title: "Less Coughing", Days: 270,
		Description: "Coughing and shortness of breath have decreased."},
	{ID: "heart_half", Title: "Healthier Heart", Days: 365,
		Description: "Your risk of coronary heart disease is half that of a smoker."},
	{ID: "stroke", Title: "Stroke Risk Down", Days: 1825,
		Description: "Your stroke risk has fallen to that of a non-smoker."},
	{ID: "lung_cancer", Title: "Cancer Risk Halved", Days: 3650,
		Description: "Your risk of lung cancer is about half that of a smoker."},
	{ID: "heart_normal", Title: "Heart Like New", Days: 5475,
		Description: "Your heart disease risk is that of someone who never smoked."},
}

// HealthMilestones returns the ordered milestone table.
func HealthMilestones() []HealthMilestone {
	out := make([]HealthMilestone, len(healthMilestones))
	copy(out, healthMilestones)
	return out
}

// HealthStageRank returns how many milestones have been reached after the
// given number of smoke-free days.
func HealthStageRank(days int) int {
	rank := 0
	for _, m := range healthMilestones {
		if days < m.Days {
			break
		}
		rank++
	}
	return rank
}

// StageRank returns the 1-based ordinal of a milestone, or 0 if unknown.
func StageRank(id string) int {
	for i, m := range healthMilestones {
		if m.ID == id {
			return i + 1
		}
	}
	return 0
}

// NextMilestone returns the first milestone not yet reached, or nil when
// all are reached.
func NextMilestone(days int) *HealthMilestone {
	rank := HealthStageRank(days)
	if rank >= len(healthMilestones) {
		return nil
	}
	m := healthMilestones[rank]
	return &m
}
