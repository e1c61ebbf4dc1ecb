package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStateStore_Defaults verifies a fresh store reports the unknown state.
func TestStateStore_Defaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, UnknownState, NewStateStore().Get())
}

// TestStateStore_SetIsLastWriteWins verifies replacement and idempotence of Set.
func TestStateStore_SetIsLastWriteWins(t *testing.T) {
	t.Parallel()

	store := NewStateStore()

	require.Equal(t, "armed_away", store.Set([]byte("armed_away")))
	require.Equal(t, "armed_away", store.Get())

	require.Equal(t, "disarmed", store.Set([]byte("disarmed")))
	require.Equal(t, "disarmed", store.Set([]byte("disarmed")))
	require.Equal(t, "disarmed", store.Get())
}

// TestDecodeState checks escape handling, unknown escapes and invalid UTF-8 input.
func TestDecodeState(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`armed`:             "armed",
		`line1\nline2`:      "line1\nline2",
		`tab\there`:         "tab\there",
		`back\\slash`:       `back\slash`,
		`\x41\x42`:          "AB",
		`caf\u00e9`:    "café",
		`\'quoted\"`:        `'quoted"`,
		`unknown\qescape`:   `unknown\qescape`,
		`trailing\`:         `trailing\`,
		"already\ttabbed":   "already\ttabbed",
		"ünïcode":           "ünïcode",
		`\101`:              "A",
		`pending \u00`:      `pending \u00`,
		`\U0001F6A8 alarm!`: "\U0001F6A8 alarm!",
	}

	for raw, want := range cases {
		require.Equal(t, want, DecodeState([]byte(raw)), raw)
	}

	require.Equal(t, "ÿþ", DecodeState([]byte{0xff, 0xfe}))
}
