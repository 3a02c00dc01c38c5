package runs

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusCreated, StatusImporting, true},
		{StatusImporting, StatusMapped, true},
		{StatusMapped, StatusStaged, true},
		{StatusStaged, StatusReported, true},

		// No skipping ahead.
		{StatusCreated, StatusMapped, false},
		{StatusImporting, StatusStaged, false},
		{StatusCreated, StatusReported, false},

		// Backward moves allowed for re-import and re-stage.
		{StatusStaged, StatusImporting, true},
		{StatusReported, StatusStaged, true},
		{StatusMapped, StatusCreated, true},

		// Self and unknown states rejected.
		{StatusStaged, StatusStaged, false},
		{"bogus", StatusStaged, false},
		{StatusStaged, "bogus", false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
