package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewEventEncodesPayload(t *testing.T) {
	id := uuid.New()
	evt := NewEvent("auction.activated", "auction", id, map[string]interface{}{
		"auction_id": id,
		"status":     "LIVE",
	})

	var decoded map[string]interface{}
	if err := json.Unmarshal(evt.Payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["status"] != "LIVE" {
		t.Fatalf("payload status = %v, want LIVE", decoded["status"])
	}
}

func TestNewEventSurfacesUnencodablePayload(t *testing.T) {
	evt := NewEvent("auction.activated", "auction", uuid.New(), map[string]interface{}{
		"bad": make(chan int),
	})

	if len(evt.Payload) == 0 {
		t.Fatal("payload is empty, want an error body")
	}
	var decoded map[string]string
	if err := json.Unmarshal(evt.Payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if !strings.Contains(decoded["payload_error"], "chan") {
		t.Fatalf("payload_error = %q, want the encoding failure", decoded["payload_error"])
	}
}
