package amqp

import (
	"testing"
	"time"
)

func TestNewTransactionEventMessage(t *testing.T) {
	msg := NewTransactionEventMessage(42, ActionCreated)
	if msg.ID != 42 {
		t.Errorf("ID = %d, want 42", msg.ID)
	}
	if msg.Action != ActionCreated {
		t.Errorf("Action = %q, want %q", msg.Action, ActionCreated)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestTransactionEventMessageJSON(t *testing.T) {
	msg := &TransactionEventMessage{
		ID:        7,
		Action:    ActionDeleted,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := TransactionEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if parsed.ID != msg.ID || parsed.Action != msg.Action || !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestTransactionEventMessageInvalidJSON(t *testing.T) {
	if _, err := TransactionEventMessageFromJSON([]byte(`{"id":"x"}`)); err == nil {
		t.Error("expected error for invalid payload")
	}
}
