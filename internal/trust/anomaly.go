package trust

import (
	"time"

	"retroboard/backend/internal/fingerprint"
)

// rapidChangeWindow is the time delta below which a simultaneous IP and
// signature change is treated as a likely session theft rather than an
// ordinary network move.
const rapidChangeWindow = 5 * time.Minute

// AnomalyResult is the outcome of scoring a fingerprint against its history.
type AnomalyResult struct {
	IsAnomalous bool
	Risk        Risk
	Reasons     []string
}

// DetectAnomaly compares current against the most recent entry of history.
// No history or a full match is low risk. An IP-only change is medium. Both
// components changing within rapidChangeWindow of the last entry is high.
func DetectAnomaly(history []fingerprint.Fingerprint, current fingerprint.Fingerprint) AnomalyResult {
	if len(history) == 0 {
		return AnomalyResult{Risk: RiskLow}
	}
	last := history[len(history)-1]

	ipChanged := last.IPHash != current.IPHash
	uaChanged := last.UserAgentHash != current.UserAgentHash

	if !ipChanged && !uaChanged {
		return AnomalyResult{Risk: RiskLow}
	}

	delta := time.Duration(current.CapturedAtMs-last.CapturedAtMs) * time.Millisecond
	if ipChanged && uaChanged && delta < rapidChangeWindow {
		return AnomalyResult{
			IsAnomalous: true,
			Risk:        RiskHigh,
			Reasons:     []string{"Rapid environment change detected"},
		}
	}
	if ipChanged && !uaChanged {
		return AnomalyResult{
			IsAnomalous: true,
			Risk:        RiskMedium,
			Reasons:     []string{"IP address changed"},
		}
	}
	return AnomalyResult{Risk: RiskLow}
}
