package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// Queries against a live cluster (the room key claim and the read cursor
// guard) are covered by scripts/verify_api. These tests stay on the row
// mapping.

func TestEncodeMetadata(t *testing.T) {
	got, err := encodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = encodeMetadata(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = encodeMetadata(map[string]any{model.MetadataClientRef: "local-1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"client_ref":"local-1"}`, *got)

	_, err = encodeMetadata(map[string]any{"bad": func() {}})
	assert.Error(t, err)
}

func TestMessageRowDestMatchesColumns(t *testing.T) {
	var row messageRow
	assert.Len(t, row.dest(), len(strings.Split(messageColumns, ",")))
}

func TestMessageRowMapping(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	meta := `{"client_ref":"local-1"}`
	row := messageRow{
		roomID:    "room-1",
		id:        42,
		senderID:  "u1",
		content:   model.StringPtr("hello"),
		msgType:   "text",
		metadata:  &meta,
		createdAt: at,
		updatedAt: at,
	}

	m := row.message()
	assert.Equal(t, snowflake.ID(42), m.ID)
	assert.Equal(t, "room-1", m.ChatRoomID)
	assert.Equal(t, "u1", m.SenderID)
	assert.Equal(t, model.TypeText, m.MessageType)
	assert.Equal(t, "hello", *m.Content)
	assert.Nil(t, m.MediaURI)
	assert.False(t, m.IsDeleted)
	assert.Equal(t, "local-1", m.Metadata[model.MetadataClientRef])
	assert.Equal(t, at, m.CreatedAt)
}

func TestMessageRowDropsBrokenMetadata(t *testing.T) {
	broken := `{not json`
	row := messageRow{roomID: "room-1", id: 1, msgType: "text", metadata: &broken}
	assert.Nil(t, row.message().Metadata)

	empty := ""
	row.metadata = &empty
	assert.Nil(t, row.message().Metadata)
}

func TestMessageRowTombstone(t *testing.T) {
	row := messageRow{roomID: "room-1", id: 7, senderID: "u2", msgType: "deleted", isDeleted: true}
	m := row.message()
	assert.True(t, m.IsDeleted)
	assert.Equal(t, model.TypeDeleted, m.MessageType)
	assert.Nil(t, m.Content)
}
