package domain

// Quality is the freshness/validity indicator on a cached signal value (§3).
type Quality string

const (
	QualityOK          Quality = "OK"
	QualityStale       Quality = "STALE"
	QualityUnavailable Quality = "UNAVAILABLE"
	QualityFault       Quality = "FAULT"
	QualityUnknown     Quality = "UNKNOWN"
)

// severity orders qualities so aggregation (e.g. "worst quality across a
// device's signals") has a total order to reduce over.
var severity = map[Quality]int{
	QualityOK:          0,
	QualityStale:       1,
	QualityUnknown:     2,
	QualityUnavailable: 3,
	QualityFault:       4,
}

// Worse reports whether q is strictly more severe than other.
func (q Quality) Worse(other Quality) bool {
	return severity[q] > severity[other]
}

// IsDegraded reports whether q is one of the non-OK severities that the
// State Cache's is_stale predicate also treats as stale regardless of age.
func (q Quality) IsDegraded() bool {
	switch q {
	case QualityStale, QualityFault, QualityUnknown:
		return true
	default:
		return false
	}
}
