package domain

import "time"

// Metrics recebe uma observação por decisão tomada pelo motor de consumo.
type Metrics interface {
	ObserveDecision(limiter string, outcome Outcome, elapsed time.Duration)
}
