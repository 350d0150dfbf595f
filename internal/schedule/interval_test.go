package schedule

import (
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"disjoint", at(0), at(10), at(20), at(30), false},
		{"touching boundary", at(0), at(10), at(10), at(20), false},
		{"touching boundary reversed", at(10), at(20), at(0), at(10), false},
		{"partial overlap", at(0), at(10), at(9), at(20), true},
		{"containment", at(0), at(30), at(10), at(20), true},
		{"identical", at(0), at(10), at(0), at(10), true},
		{"zero width both", at(10), at(10), at(10), at(10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
				t.Fatalf("Overlaps(%v, %v, %v, %v) = %v, want %v",
					tt.s1, tt.e1, tt.s2, tt.e2, got, tt.want)
			}
			// Symmetry holds for every pair.
			if got := Overlaps(tt.s2, tt.e2, tt.s1, tt.e1); got != tt.want {
				t.Fatalf("Overlaps is not symmetric for %s", tt.name)
			}
		})
	}
}
