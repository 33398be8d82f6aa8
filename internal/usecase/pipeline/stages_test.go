package pipeline

import "testing"

func TestSpeakerOrderFromLabel(t *testing.T) {
	cases := []struct {
		label string
		want  int
	}{
		{"speaker_1", 1},
		{"speaker_12", 12},
		{"SPEAKER_3", 3},
		{"speaker_", 0},
		{"speaker", 0},
		{"speaker_0", 0},
		{"speaker_-1", 0},
		{"speaker_x", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := speakerOrderFromLabel(tc.label); got != tc.want {
			t.Errorf("speakerOrderFromLabel(%q) = %d, want %d", tc.label, got, tc.want)
		}
	}
}
