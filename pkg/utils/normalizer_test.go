package utils_test

import (
	"testing"

	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestTextNormalizerNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain ascii lowercased",
			input: "John",
			want:  "john",
		},
		{
			name:  "accents removed",
			input: "Éxodo",
			want:  "exodo",
		},
		{
			name:  "mixed diacritics",
			input: "Cantarês de Salomão",
			want:  "cantares de salomao",
		},
		{
			name:  "digits and punctuation untouched",
			input: "1 Corinthians 13:4",
			want:  "1 corinthians 13:4",
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

			normalizer := utils.NewTextNormalizer()
			got := normalizer.Normalize(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}
