package transmission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, NumericID(42), id)
	assert.Equal(t, "42", id.String())

	id, err = ParseID("ABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", id.String())

	for _, bad := range []string{"", "0", "-1", "abc", "zzcdef0123456789abcdef0123456789abcdef01", "abcdef0123456789abcdef0123456789abcdef0"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestIDMarshalJSON(t *testing.T) {
	b, err := json.Marshal([]ID{NumericID(1), HashID("ab")})
	require.NoError(t, err)
	assert.Equal(t, `[1,"ab"]`, string(b))
	assert.True(t, ID{}.IsZero())
	assert.False(t, NumericID(1).IsZero())
}

func TestIDUnmarshalText(t *testing.T) {
	var id ID
	require.NoError(t, id.UnmarshalText([]byte("5")))
	assert.Equal(t, NumericID(5), id)
	assert.Error(t, id.UnmarshalText([]byte("x")))
}

func TestBoolList(t *testing.T) {
	var bl BoolList
	require.NoError(t, json.Unmarshal([]byte(`[1, 0, true, false]`), &bl))
	assert.Equal(t, BoolList{true, false, true, false}, bl)
	assert.Error(t, json.Unmarshal([]byte(`[2]`), &bl))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bl))
}

func TestStatus(t *testing.T) {
	var tor Torrent
	require.NoError(t, json.Unmarshal([]byte(`{"status": 2}`), &tor))
	assert.Equal(t, StatusChecking, tor.Status)
	assert.True(t, tor.Status.IsChecking())
	assert.True(t, StatusCheckWait.IsChecking())
	assert.False(t, StatusStopped.IsChecking())
	assert.False(t, StatusSeeding.IsChecking())
	assert.Equal(t, "seeding", StatusSeeding.String())
	assert.Equal(t, "status 9", Status(9).String())
}
