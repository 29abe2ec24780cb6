package trust

import "strings"

// Structural bounds for a session token. A JWT-shaped token shorter than
// minTokenLength cannot hold a real signature; one longer than maxTokenLength
// is likely a stuffing or smuggling attempt.
const (
	minTokenLength = 10
	maxTokenLength = 9000
)

// StructureResult is the outcome of checking a token's shape.
type StructureResult struct {
	IsValid bool
	Issues  []string
}

// ValidateTokenStructure checks that token looks like a well-formed JWT:
// exactly three dot-delimited segments, plausible overall length, and only
// base64url characters plus '.'. Every violation appends a specific issue.
func ValidateTokenStructure(token string) StructureResult {
	res := StructureResult{IsValid: true}

	if len(strings.Split(token, ".")) != 3 {
		res.IsValid = false
		res.Issues = append(res.Issues, "Token does not have valid JWT-like structure")
	}
	if len(token) < minTokenLength {
		res.IsValid = false
		res.Issues = append(res.Issues, "Token is suspiciously short")
	}
	if len(token) > maxTokenLength {
		res.IsValid = false
		res.Issues = append(res.Issues, "Token is suspiciously long")
	}
	if !validTokenCharset(token) {
		res.IsValid = false
		res.Issues = append(res.Issues, "Token contains invalid characters")
	}
	return res
}

func validTokenCharset(token string) bool {
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '=':
		default:
			return false
		}
	}
	return true
}
