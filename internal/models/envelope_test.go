package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(MsgTokenQuery, TokenQuery{Token: "abc"})
	require.NoError(t, err)
	assert.Equal(t, MsgTokenQuery, env.Type)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ac_tokenquery","config":{"token":"abc"}}`, string(raw))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var query TokenQuery
	require.NoError(t, decoded.Decode(&query))
	assert.Equal(t, "abc", query.Token)
}

func TestEnvelope_DecodeEmptyPayload(t *testing.T) {
	t.Parallel()

	var query TokenQuery
	assert.Error(t, Envelope{Type: MsgTokenQuery}.Decode(&query))
}

func TestIdentity_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bob Miller", Identity{UserID: "u1", FirstName: "Bob", LastName: "Miller"}.DisplayName())
	assert.Equal(t, "Bob", Identity{UserID: "u1", FirstName: "Bob"}.DisplayName())
	assert.Equal(t, "u1", Identity{UserID: "u1"}.DisplayName())
}

func TestIdentity_Merge(t *testing.T) {
	t.Parallel()

	base := Identity{UserID: "u1", FirstName: "Bob", Language: "en"}
	merged := base.Merge(Identity{UserID: "u1", LastName: "Miller", Language: "de"})

	assert.Equal(t, "u1", merged.UserID)
	assert.Equal(t, "Bob", merged.FirstName)
	assert.Equal(t, "Miller", merged.LastName)
	assert.Equal(t, "de", merged.Language)

	// empty fields never erase existing data
	unchanged := merged.Merge(Identity{UserID: "u1"})
	assert.Equal(t, merged, unchanged)
}
