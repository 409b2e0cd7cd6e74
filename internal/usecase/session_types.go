package usecase

import (
	"scribedesk/internal/domain"
	"scribedesk/internal/ports"
)

// GenerationResult reports how a Generate call ended. Output holds whatever
// content arrived, including the partial output of a failed generation.
type GenerationResult struct {
	Outcome  ports.GenerationOutcome
	Output   string
	Chunks   int
	Revision *domain.Revision
}

type activeGeneration struct {
	taskID    string
	sessionID string
	output    *outputAggregator
}
