package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeLower(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"blanks dropped", []string{" ", ""}, []string{}},
		{"case folded", []string{" Town_Reviewer", "town_reviewer ", "MEMBER"}, []string{"town_reviewer", "member"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeLower(tt.in))
		})
	}
}

func TestSquashSpace(t *testing.T) {
	assert.Equal(t, "Mary Ann Smith", SquashSpace("  Mary\t Ann\n\nSmith "))
	assert.Equal(t, "", SquashSpace(" \t "))
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank(" \n"))
	assert.False(t, Blank(" x "))
}
