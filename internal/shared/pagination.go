package shared

// DefaultListLimit applies when callers do not ask for a page size.
const DefaultListLimit = 50

// MaxListLimit caps list queries.
const MaxListLimit = 500

// NormalizeLimit clamps a requested page size into [1, MaxListLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
