package schedule

import "time"

// Overlaps reports whether the half-open intervals [s1, e1) and [s2, e2)
// share any instant. Touching endpoints do not overlap. This predicate is
// the only interval comparison in the system; conflict checks everywhere
// must go through it.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
