package textmatch

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Take Five", "take five", 1.0},
		{"punctuation ignored", "Don't Stop", "dont stop", 1.0},
		{"contains", "Time Out", "Time Out Deluxe", 0.9},
		{"jaccard", "blue in green", "green day blue", 0.5},
		{"disjoint", "alpha", "omega", 0},
		{"both empty", "", "", 0},
		{"one empty", "", "x", 0},
		{"only punctuation", "!!!", "???", 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b, DefaultContainsBonus)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Take Five", "Take Five (Live)"},
		{"blue in green", "green day blue"},
		{"", "x"},
		{"The Dave Brubeck Quartet", "Dave Brubeck"},
		{"a b c", "c d"},
	}
	for _, p := range pairs {
		for _, k := range []float64{0.86, 0.9, 0.96} {
			ab := Similarity(p[0], p[1], k)
			ba := Similarity(p[1], p[0], k)
			if ab != ba {
				t.Errorf("asymmetric for %q/%q k=%v: %v vs %v", p[0], p[1], k, ab, ba)
			}
		}
	}
}

func TestEditDistance(t *testing.T) {
	if d := EditDistance("Brown Sugar", "brown sugar (live)"); d != 0 {
		t.Errorf("expected 0 after normalization, got %d", d)
	}
	if d := EditDistance("kitten", "sitting"); d != 3 {
		t.Errorf("expected 3, got %d", d)
	}
}
