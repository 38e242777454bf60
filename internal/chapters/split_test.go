package chapters

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"three chapters", "A\n\nB\n\nC", []string{"A", "B", "C"}},
		{"extra blank run", "A\n\n\n\nB", []string{"A", "B"}},
		{"empty", "", nil},
		{"whitespace only", "  \n\n\t\n\n ", []string{}},
		{"single chapter", "Il était une fois", []string{"Il était une fois"}},
		{"line breaks inside chapter", "ligne 1\nligne 2\n\nsuite", []string{"ligne 1\nligne 2", "suite"}},
		{"windows line endings", "A\r\n\r\nB", []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, 3, Count("A\n\nB\n\nC"))
	assert.Equal(t, 2, Count("A\n\n\n\nB"))
	assert.Equal(t, 0, Count("\n\n\n\n"))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \t\n"))
	assert.False(t, IsBlank(" a "))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Chapitre premier", Title("  Chapitre   premier\nLe corps du texte"))

	long := strings.Repeat("mot ", 40)
	title := Title(long)
	assert.True(t, strings.HasSuffix(title, "…"))
	assert.LessOrEqual(t, len([]rune(title)), maxTitleRunes+1)
}
