package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventType es la etiqueta de un evento de dominio. El vocabulario es abierto:
// tipos desconocidos se aceptan y se tratan como no-op al despacharlos.
type EventType string

const (
	EventStickerAssetCreated EventType = "STICKER_ASSET_CREATED"
	EventStickerClassified   EventType = "STICKER_CLASSIFIED"
	EventPackUpdated         EventType = "PACK_UPDATED"
	EventEngagementRecorded  EventType = "ENGAGEMENT_RECORDED"
)

// NormalizeEventType aplica trim + mayúsculas.
func NormalizeEventType(raw string) EventType {
	return EventType(strings.ToUpper(strings.TrimSpace(raw)))
}

func (t EventType) String() string { return string(t) }

// IsKnown indica si el tipo pertenece al vocabulario conocido.
func (t EventType) IsKnown() bool {
	switch NormalizeEventType(string(t)) {
	case EventStickerAssetCreated, EventStickerClassified, EventPackUpdated, EventEngagementRecorded:
		return true
	}
	return false
}

// Event es la unión cerrada de eventos de dominio con payload tipado.
// Solo los tipos de este paquete la implementan.
type Event interface {
	Kind() EventType
	isEvent()
}

type StickerAssetCreated struct {
	AssetID  string `json:"asset_id"`
	MimeType string `json:"mime_type,omitempty"`
	OwnerJID string `json:"owner_jid,omitempty"`
}

type StickerClassified struct {
	AssetID    string  `json:"asset_id"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type PackUpdated struct {
	PackID string `json:"pack_id"`
	Reason string `json:"reason,omitempty"`
}

type EngagementRecorded struct {
	PackID         string `json:"pack_id"`
	AssetID        string `json:"asset_id,omitempty"`
	EngagementKind string `json:"kind,omitempty"`
}

// UnknownEvent cubre cualquier tipo fuera del vocabulario. Despacharlo no hace nada.
type UnknownEvent struct {
	Type EventType
}

func (StickerAssetCreated) Kind() EventType { return EventStickerAssetCreated }
func (StickerClassified) Kind() EventType   { return EventStickerClassified }
func (PackUpdated) Kind() EventType         { return EventPackUpdated }
func (EngagementRecorded) Kind() EventType  { return EventEngagementRecorded }
func (e UnknownEvent) Kind() EventType      { return e.Type }

func (StickerAssetCreated) isEvent() {}
func (StickerClassified) isEvent()   {}
func (PackUpdated) isEvent()         {}
func (EngagementRecorded) isEvent()  {}
func (UnknownEvent) isEvent()        {}

// DecodeEvent convierte una fila del outbox en su variante tipada.
func DecodeEvent(evt DomainEvent) (Event, error) {
	return DecodePayload(evt.EventType, evt.AggregateID, evt.Payload)
}

// DecodePayload decodifica el payload según el tipo. Los ids ausentes en el
// payload se toman del aggregateID.
func DecodePayload(eventType EventType, aggregateID string, payload json.RawMessage) (Event, error) {
	switch t := NormalizeEventType(string(eventType)); t {
	case EventStickerAssetCreated:
		var e StickerAssetCreated
		if err := unmarshalObject(payload, &e); err != nil {
			return nil, fmt.Errorf("%s payload: %w", t, err)
		}
		e.AssetID = firstNonEmpty(e.AssetID, aggregateID)
		return e, requireID(t, "asset_id", e.AssetID)

	case EventStickerClassified:
		var e StickerClassified
		if err := unmarshalObject(payload, &e); err != nil {
			return nil, fmt.Errorf("%s payload: %w", t, err)
		}
		e.AssetID = firstNonEmpty(e.AssetID, aggregateID)
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("%s payload: confidence %v out of range [0,1]", t, e.Confidence)
		}
		return e, requireID(t, "asset_id", e.AssetID)

	case EventPackUpdated:
		var e PackUpdated
		if err := unmarshalObject(payload, &e); err != nil {
			return nil, fmt.Errorf("%s payload: %w", t, err)
		}
		e.PackID = firstNonEmpty(e.PackID, aggregateID)
		return e, requireID(t, "pack_id", e.PackID)

	case EventEngagementRecorded:
		var e EngagementRecorded
		if err := unmarshalObject(payload, &e); err != nil {
			return nil, fmt.Errorf("%s payload: %w", t, err)
		}
		e.PackID = firstNonEmpty(e.PackID, aggregateID)
		return e, requireID(t, "pack_id", e.PackID)

	default:
		return UnknownEvent{Type: t}, nil
	}
}

func unmarshalObject(payload json.RawMessage, dest any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	return json.Unmarshal(trimmed, dest)
}

func requireID(t EventType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s payload: missing %s", t, field)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
