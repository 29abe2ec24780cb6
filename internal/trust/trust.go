// Package trust scores requests for session-hijacking risk and validates
// session cookies and token structure. All checks fail closed: an internal
// error during validation produces an invalid verdict, never a pass.
package trust

// Risk is a heuristic severity for a suspicious signal.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

// String returns the lowercase name of the risk level.
func (r Risk) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "low"
	}
}

// Max returns the higher of r and other.
func (r Risk) Max(other Risk) Risk {
	if other > r {
		return other
	}
	return r
}

// Verdict is the outcome of a trust check. It is a result value, never stored.
type Verdict struct {
	IsValid             bool
	ShouldRotateSession bool
	ShouldClearCookies  bool
	Reason              string
	Recommendations     []string
}
