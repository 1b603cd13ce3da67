// Package classifier implements the hysteresis traffic-light rule table: a
// deterministic, total function from a site's current metrics plus recent
// history to one of green/orange/red.
package classifier

const (
	Green  = "green"
	Orange = "orange"
	Red    = "red"
)

// Snapshot is the minimal set of fields the classifier reads. It mirrors
// database.ProbeSnapshot without importing the database package, keeping
// this package dependency-free and trivially testable.
type Snapshot struct {
	HTTPStatus  *int
	LatencyMs   *int
	PingMs      *float64
	SSLDaysLeft *int
	DNSResolved bool
	Redirects   *int
}

// Classify evaluates the fixed-order rule table against current plus up to
// the four most recent prior snapshots (current is appended last to form
// "last5" internally). The first rule that decides wins.
func Classify(current Snapshot, recentHistory []Snapshot) string {
	last5 := lastN(append(append([]Snapshot{}, recentHistory...), current), 5)

	// Rule 1
	if current.HTTPStatus == nil {
		return Red
	}

	status := *current.HTTPStatus

	// Rule 2
	if status >= 500 {
		if sustainedAtLeast500(last5) {
			return Red
		}
		return Orange
	}

	// Rule 3
	if status >= 400 && status < 500 {
		return Orange
	}

	// Rule 4
	if current.LatencyMs == nil || *current.LatencyMs > 5000 {
		return Red
	}
	if *current.LatencyMs > 2500 {
		return Red
	}
	if *current.LatencyMs > 1500 {
		return Orange
	}

	// Rule 5
	if current.PingMs != nil {
		if sustainedAbove(last5, 1200) {
			return Red
		}
		if *current.PingMs > 1500 {
			return Red
		}
		if *current.PingMs > 600 {
			return Orange
		}
	}

	// Rule 6
	if current.SSLDaysLeft != nil {
		if *current.SSLDaysLeft <= 0 {
			return Red
		}
		if *current.SSLDaysLeft < 7 {
			return Orange
		}
	}

	// Rule 7
	if !current.DNSResolved {
		return Red
	}

	// Rule 8
	if current.Redirects != nil && *current.Redirects > 5 {
		return Orange
	}

	// Rule 9
	return Green
}

// sustainedAtLeast500 implements rule 2's escalation: true if the last two
// entries of last5 are both >=500, or more than two of last5 are >=500.
func sustainedAtLeast500(last5 []Snapshot) bool {
	if len(last5) < 2 {
		return false
	}
	tail := last5[len(last5)-2:]
	bothLastTwo := countAtLeast500(tail) == 2

	total := 0
	for _, s := range last5 {
		if s.HTTPStatus != nil && *s.HTTPStatus >= 500 {
			total++
		}
	}

	return bothLastTwo || total > 2
}

func countAtLeast500(snaps []Snapshot) int {
	n := 0
	for _, s := range snaps {
		if s.HTTPStatus != nil && *s.HTTPStatus >= 500 {
			n++
		}
	}
	return n
}

// sustainedAbove implements rule 5's escalation: the last two entries of
// last5 both have ping_ms strictly greater than threshold.
func sustainedAbove(last5 []Snapshot, threshold float64) bool {
	if len(last5) < 2 {
		return false
	}
	tail := last5[len(last5)-2:]
	for _, s := range tail {
		if s.PingMs == nil || *s.PingMs <= threshold {
			return false
		}
	}
	return true
}

func lastN(s []Snapshot, n int) []Snapshot {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
