package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSetAddIsIdempotent(t *testing.T) {
	set := NewReadSet("alice")

	assert.False(t, set.Add("alice"))
	assert.True(t, set.Add("bob"))
	assert.Equal(t, []string{"alice", "bob"}, set.Slice())
}

func TestReadSetDatabaseRoundTrip(t *testing.T) {
	value, err := NewReadSet("carol", "alice").Value()
	require.NoError(t, err)
	require.Equal(t, `{"alice","carol"}`, value)

	var scanned ReadSet
	require.NoError(t, scanned.Scan([]byte(`{alice,carol}`)))
	assert.True(t, scanned.Has("alice"))
	assert.True(t, scanned.Has("carol"))
	assert.Len(t, scanned, 2)
}

func TestMessageJSONCarriesSortedReadSet(t *testing.T) {
	msg := Message{ID: 1, GroupID: 2, SenderID: "b", Payload: Payload{Kind: PayloadText, Text: "hi"}, ReadBy: NewReadSet("b", "a")}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []any{"a", "b"}, decoded["read_by"])
	assert.Equal(t, "text", decoded["kind"])
	assert.NotContains(t, decoded, "file_url")
}

func TestPayloadNormalizeInfersKind(t *testing.T) {
	assert.Equal(t, PayloadText, Payload{Text: "  hey "}.Normalize().Kind)
	assert.Equal(t, PayloadFile, Payload{FileURL: "https://cdn/x.png"}.Normalize().Kind)
	assert.Equal(t, PayloadMedia, Payload{MediaURL: "https://gif/y"}.Normalize().Kind)
	assert.Empty(t, Payload{Text: "a", MediaURL: "https://gif/y"}.Normalize().Kind)
	assert.Empty(t, Payload{}.Normalize().Kind)
}

func TestModerationActionApply(t *testing.T) {
	m := Membership{Role: RoleMember}

	ActionBan.Apply(&m)
	ActionMute.Apply(&m)
	ActionSetAdmin.Apply(&m)
	assert.True(t, m.Banned)
	assert.True(t, m.Muted)
	assert.True(t, m.IsAdmin())

	ActionUnban.Apply(&m)
	ActionUnmute.Apply(&m)
	ActionRemoveAdmin.Apply(&m)
	assert.Equal(t, Membership{Role: RoleMember}, m)

	assert.False(t, ModerationAction("kick").Valid())
}

func TestPayloadSingleKind(t *testing.T) {
	assert.True(t, Payload{Kind: PayloadText, Text: "hi"}.SingleKind())
	assert.True(t, Payload{Kind: PayloadFile, FileURL: "https://cdn/a.pdf", FileName: "a.pdf"}.SingleKind())
	assert.True(t, Payload{Kind: PayloadMedia, MediaURL: "https://gif/a", MediaQuery: "cat"}.SingleKind())

	assert.False(t, Payload{Kind: PayloadText}.SingleKind())
	assert.False(t, Payload{Kind: PayloadText, Text: "hi", FileURL: "https://cdn/a.pdf"}.SingleKind())
	assert.False(t, Payload{Kind: PayloadMedia, MediaURL: "https://gif/a", FileName: "a.gif"}.SingleKind())
	assert.False(t, Payload{Text: "hi"}.SingleKind())
}
