package domain

// RequirementType names the statistic an achievement threshold is checked
// against.
type RequirementType string

const (
	RequireQuestionsAnswered RequirementType = "questions-answered"
	RequireCorrectAnswers    RequirementType = "correct-answers"
	RequireSessionsJoined    RequirementType = "sessions-joined"
	RequireTotalPoints       RequirementType = "total-points"
)

// AchievementRequirement is a simple threshold: the stat named by Type must
// reach Value. Scope distinguishes per-session from all-time stats.
type AchievementRequirement struct {
	Type  RequirementType `json:"type"`
	Value int             `json:"value"`
	Scope string          `json:"scope"`
}

// Achievement is a gamified reward definition, independent of any session or
// case study lifecycle.
type Achievement struct {
	ID          string                 `json:"id"`
	TeacherID   string                 `json:"teacherId,omitempty"`
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	Rarity      string                 `json:"rarity"`
	Icon        string                 `json:"icon"`
	Requirement AchievementRequirement `json:"requirements"`
	XPReward    int                    `json:"xpReward"`
	GradeBonus  int                    `json:"gradeBonus,omitempty"`
	Enabled     bool                   `json:"enabled"`
	IsDefault   bool                   `json:"isDefault"`
}

// StudentStats is the aggregate a requirement is evaluated against.
type StudentStats struct {
	QuestionsAnswered int `json:"questionsAnswered"`
	CorrectAnswers    int `json:"correctAnswers"`
	SessionsJoined    int `json:"sessionsJoined"`
	TotalPoints       int `json:"totalPoints"`
}

// Milestone reports whether one achievement is met by the current stats.
type Milestone struct {
	AchievementID string `json:"achievementId"`
	Name          string `json:"name"`
	Achieved      bool   `json:"achieved"`
}
