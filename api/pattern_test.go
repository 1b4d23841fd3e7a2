package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	cases := map[string]Pattern{
		"":      Line(),
		"*l":    Line(),
		"*line": Line(),
		"*a":    All(),
		"*all":  All(),
		"0":     Bytes(0),
		"42":    Bytes(42),
	}
	for in, want := range cases {
		got, err := ParsePattern(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"*x", "-1", "abc"} {
		_, err := ParsePattern(in)
		assert.ErrorIs(t, err, ErrUnsupportedPattern, in)
	}
}

func TestPatternValidate(t *testing.T) {
	assert.NoError(t, Line().Validate())
	assert.NoError(t, Bytes(3).Validate())
	assert.ErrorIs(t, Bytes(-3).Validate(), ErrUnsupportedPattern)
	assert.ErrorIs(t, Pattern{Kind: 9}.Validate(), ErrUnsupportedPattern)
	assert.Equal(t, "*a", All().String())
	assert.Equal(t, "7", Bytes(7).String())
}

func TestExecutorFunc(t *testing.T) {
	ran := false
	var e Executor = ExecutorFunc(func(task func()) error {
		task()
		return nil
	})
	require.NoError(t, e.Submit(func() { ran = true }))
	assert.True(t, ran)
}
