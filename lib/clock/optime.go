package clock

import "fmt"

// UninitializedTerm is the election term of a node that has not yet taken
// part in any election.
const UninitializedTerm int64 = -1

// OpTime is a (Timestamp, Term) pair identifying a position in the operation
// log. Ordering is lexicographic with the term compared first.
type OpTime struct {
	Ts   Timestamp `json:"ts"`
	Term int64     `json:"t"`
}

// Compare returns -1, 0 or 1 if o is before, equal to or after other.
func (o OpTime) Compare(other OpTime) int {
	if o.Term != other.Term {
		if o.Term < other.Term {
			return -1
		}
		return 1
	}
	if o.Ts != other.Ts {
		if o.Ts < other.Ts {
			return -1
		}
		return 1
	}
	return 0
}

// After returns whether o is strictly after other.
func (o OpTime) After(other OpTime) bool {
	return o.Compare(other) > 0
}

// Before returns whether o is strictly before other.
func (o OpTime) Before(other OpTime) bool {
	return o.Compare(other) < 0
}

// IsNull returns whether o is the zero OpTime.
func (o OpTime) IsNull() bool {
	return o.Ts.IsNull() && o.Term == 0
}

func (o OpTime) String() string {
	return fmt.Sprintf("OpTime{ts: %s, t: %d}", o.Ts, o.Term)
}
