package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEventType(t *testing.T) {
	assert.Equal(t, EventPackUpdated, NormalizeEventType("  pack_updated "))
	assert.True(t, EventType("sticker_classified").IsKnown())
	assert.False(t, EventType("FOO_BAR").IsKnown())
}

func TestDecodePayload_FallsBackToAggregateID(t *testing.T) {
	evt, err := DecodePayload("sticker_classified", "sticker-123", nil)
	require.NoError(t, err)

	classified, ok := evt.(StickerClassified)
	require.True(t, ok)
	assert.Equal(t, "sticker-123", classified.AssetID)
	assert.Equal(t, EventStickerClassified, classified.Kind())
}

func TestDecodePayload_TypedFields(t *testing.T) {
	payload := json.RawMessage(`{"pack_id":"pack-9","asset_id":"a-1","kind":"download","extra":true}`)

	evt, err := DecodePayload(EventEngagementRecorded, "ignored", payload)
	require.NoError(t, err)
	assert.Equal(t, EngagementRecorded{PackID: "pack-9", AssetID: "a-1", EngagementKind: "download"}, evt)
	assert.Equal(t, EventEngagementRecorded, evt.Kind())
}

func TestDecodePayload_Invalid(t *testing.T) {
	_, err := DecodePayload(EventStickerClassified, "a-1", json.RawMessage(`{"confidence": 4}`))
	assert.Error(t, err)

	_, err = DecodePayload(EventPackUpdated, "", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(EventStickerAssetCreated, "a-1", json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestDecodePayload_UnknownIsCatchAll(t *testing.T) {
	evt, err := DecodePayload("foo_bar", "x", json.RawMessage(`not even json`))
	require.NoError(t, err)
	assert.Equal(t, UnknownEvent{Type: "FOO_BAR"}, evt)
}

func TestEventStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusPending))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusFailed))

	for _, terminal := range []EventStatus{StatusCompleted, StatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range AllStatuses {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestTruncateError(t *testing.T) {
	long := make([]rune, MaxLastErrorLength+10)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, []rune(TruncateError(string(long))), MaxLastErrorLength)
	assert.Equal(t, "boom", TruncateError("boom"))
}
