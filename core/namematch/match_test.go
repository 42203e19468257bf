package namematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{a: "Mohammed Al-Otaibi", b: "Mohamed Alotaibi", want: true},
		{a: "Mohammed Al-Otaibi", b: "  mohammed   al-otaibi ", want: true},
		{a: "Mohammed Al-Otaibi", b: "Ali Al-Harbi", want: false},
		{a: "", b: "", want: true},
		{a: "Sara", b: "", want: false},
		{a: "محمد العتيبي", b: "محمد  العتيبى", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Matches(tt.a, tt.b); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v (ratio %.2f); want %v", tt.a, tt.b, got, Ratio(tt.a, tt.b), tt.want)
			}
		})
	}

	assert.Equal(t, 1.0, Ratio("Nora", "nora"))
	assert.Equal(t, Ratio("abc", "abd"), Ratio("abd", "abc"))
}

func TestBest(t *testing.T) {
	candidates := []string{"Sara  Al-Qahtani", "Mohammed Al-Otaibi", "Mohammed Al-Otaiby"}

	best, score, ok := Best("mohammed al-otaibi", candidates)
	assert.True(t, ok)
	assert.Equal(t, "Mohammed Al-Otaibi", best)
	assert.Equal(t, 1.0, score)

	best, _, ok = Best("sara al qahtani", candidates)
	assert.True(t, ok)
	assert.Equal(t, "Sara Al-Qahtani", best)

	_, _, ok = Best("Khalid", candidates)
	assert.False(t, ok)

	_, _, ok = Best("Khalid", nil)
	assert.False(t, ok)
}
