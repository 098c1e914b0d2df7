package utils_test

import (
	"strings"
	"testing"

	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestCompressAllWhitespace(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single space",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "multiple spaces",
			input: "hello    world",
			want:  "hello world",
		},
		{
			name:  "newlines and spaces",
			input: "hello\n\n  world  \n\n",
			want:  "hello world",
		},
		{
			name:  "tabs and spaces",
			input: "hello\t\t  world",
			want:  "hello world",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \n\t   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.CompressAllWhitespace(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncatePreview(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{
			name:     "short text unchanged",
			input:    "a short prayer",
			maxRunes: 300,
			want:     "a short prayer",
		},
		{
			name:     "whitespace collapsed before measuring",
			input:    "praise\n\nreport:   answered!",
			maxRunes: 300,
			want:     "praise report: answered!",
		},
		{
			name:     "long text truncated with ellipsis",
			input:    strings.Repeat("word ", 100),
			maxRunes: 20,
			want:     "word word word word…",
		},
		{
			name:     "trailing space trimmed before ellipsis",
			input:    "abcd efgh ijkl",
			maxRunes: 10,
			want:     "abcd efgh…",
		},
		{
			name:     "multi byte runes not split",
			input:    strings.Repeat("é", 10),
			maxRunes: 4,
			want:     "éééé…",
		},
		{
			name:     "exact length keeps no ellipsis",
			input:    "abcde",
			maxRunes: 5,
			want:     "abcde",
		},
		{
			name:     "zero max",
			input:    "anything",
			maxRunes: 0,
			want:     "",
		},
		{
			name:     "empty input",
			input:    "",
			maxRunes: 10,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.TruncatePreview(tt.input, tt.maxRunes)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeVerseRef(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple reference",
			input: "John 3:16",
			want:  "john-3:16",
		},
		{
			name:  "book with number",
			input: "1 Corinthians 13:4",
			want:  "1-corinthians-13:4",
		},
		{
			name:  "extra whitespace",
			input: "  Psalm   23:1  ",
			want:  "psalm-23:1",
		},
		{
			name:  "verse range",
			input: "Romans 8:28-39",
			want:  "romans-8:28-39",
		},
		{
			name:  "accented reference folded",
			input: "Éxodo 3:14",
			want:  "exodo-3:14",
		},
		{
			name:  "already normalized",
			input: "john-3:16",
			want:  "john-3:16",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.NormalizeVerseRef(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}
