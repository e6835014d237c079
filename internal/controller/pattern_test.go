package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	aliases := []string{"a", "ab", "b", "read-1", "read-2", "write"}
	tests := []struct {
		spec string
		want []string
	}{
		{"a", []string{"a"}},
		{"a,b", []string{"a", "b"}},
		{"b; a", []string{"a", "b"}},
		{"a  b\tab", []string{"a", "ab", "b"}},
		{"read-1", []string{"read-1"}},
		{"read-.*", []string{"read-1", "read-2"}},
		{"a.*", []string{"a", "ab"}},
		{"a|write", []string{"a", "write"}},
		{".*, a", []string{"a", "ab", "b", "read-1", "read-2", "write"}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := match(tt.spec, aliases)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Anchored(t *testing.T) {
	// "a." must not match "a" or a longer alias by substring.
	_, err := match("b.", []string{"b", "abc"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_Errors(t *testing.T) {
	_, err := match("", []string{"a"})
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = match(" ,; ", []string{"a"})
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = match("c", []string{"a"})
	assert.ErrorIs(t, err, ErrUnknownAlias)
	_, err = match("[", []string{"a"})
	assert.Error(t, err)
}
