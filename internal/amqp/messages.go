package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RowAppendedMessage announces a row the ledger store confirmed. It carries
// the full row so consumers never read back from the store.
type RowAppendedMessage struct {
	ID         string    `json:"id"`
	RowRef     string    `json:"row_ref"`
	RecordedBy string    `json:"recorded_by"`
	Cells      []string  `json:"cells"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRowAppendedMessage creates a message with a fresh ID.
func NewRowAppendedMessage(rowRef, recordedBy string, cells []string) *RowAppendedMessage {
	return &RowAppendedMessage{
		ID:         uuid.NewString(),
		RowRef:     rowRef,
		RecordedBy: recordedBy,
		Cells:      append([]string(nil), cells...),
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RowAppendedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RowAppendedMessageFromJSON decodes a message body.
func RowAppendedMessageFromJSON(data []byte) (*RowAppendedMessage, error) {
	var msg RowAppendedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
