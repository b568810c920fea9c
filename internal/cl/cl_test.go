package cl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLinkIsEightBase62Chars(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		link := NewLink()
		require.Len(t, link, 8)
		for _, r := range link {
			require.Contains(t, base62Alphabet, string(r))
		}
		require.False(t, seen[link], "unexpected collision in 100 draws")
		seen[link] = true
	}
}

func TestAllowedTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{Draft, Open, true},
		{Draft, Closed, true},
		{Open, Merged, true},
		{Open, Closed, true},
		{Draft, Merged, false},
		{Merged, Open, false},
		{Closed, Open, false},
		{Open, Draft, false},
	}
	for _, c := range cases {
		got := allowedTransitions[c.from][c.to]
		require.Equal(t, c.ok, got, "%s -> %s", c.from, c.to)
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransition{From: Merged, To: Open}
	require.Contains(t, err.Error(), "Merged")
	require.Contains(t, err.Error(), "Open")
}
