package domain

import "time"

// Stage is one step of the borrower workflow shown in the timeline.
type Stage struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Summary string   `json:"summary" yaml:"summary"`
	Prompts []string `json:"prompts" yaml:"prompts"`
}

// TurnRecord is a journaled stage decision for a single chat turn.
type TurnRecord struct {
	CorrelationID string
	FromStage     string
	ToStage       string
	RuleID        string
	Advanced      bool
	MessageCount  int
	CreatedAt     time.Time
}
