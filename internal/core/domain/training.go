package domain

import "time"

type TrainingSource string

const (
	TrainingSourceAuto   TrainingSource = "AUTO"
	TrainingSourceManual TrainingSource = "MANUAL"
)

// TrainingSample is one record of the training corpus.
type TrainingSample struct {
	TemplateID     int64          `json:"templateId"`
	Text           string         `json:"text"`
	OrganizationID string         `json:"organizationId"`
	SubUnitID      *string        `json:"subUnitId"`
	Source         TrainingSource `json:"source"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// TrainingMeta is the retrain scheduler state.
type TrainingMeta struct {
	LastTrainingCount int
	LastTrainingAt    time.Time
}
