package engine

// DefaultMaxPrecommitRounds is the default BeforeCommit invocation limit per Commit.
const DefaultMaxPrecommitRounds = 1000

// QuotaEnforcer counts BeforeCommit invocations during one precommit phase
// and enforces a maximum.
//
// The work queue only terminates if hooks eventually stop dirtying objects.
// A hook that creates or touches a fresh object on every call would loop
// forever; the quota turns that into a PrecommitQuotaError.
type QuotaEnforcer struct {
	maxRounds int
	current   int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxRounds int) *QuotaEnforcer {
	return &QuotaEnforcer{maxRounds: maxRounds}
}

// Check increments the round counter and validates against the limit.
func (q *QuotaEnforcer) Check() error {
	q.current++
	if q.current > q.maxRounds {
		return &PrecommitQuotaError{
			Rounds: q.current,
			Limit:  q.maxRounds,
		}
	}
	return nil
}

// Current returns the number of rounds checked so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxRounds returns the round limit.
func (q *QuotaEnforcer) MaxRounds() int {
	return q.maxRounds
}
