package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collections named in change messages.
const (
	CollectionFarmers  = "farmers"
	CollectionExpenses = "expenses"
	CollectionAll      = "all"
)

// Change operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpLoad   = "load"
)

// RecordsChangedMessage announces that the ledger was mutated. It only
// carries identifiers; consumers read the current state from the cache.
type RecordsChangedMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Op         string    `json:"op"`
	Version    uint64    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewRecordsChangedMessage(collection, id, op string, version uint64) *RecordsChangedMessage {
	return &RecordsChangedMessage{
		Collection: collection,
		ID:         id,
		Op:         op,
		Version:    version,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordsChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordsChangedMessageFromJSON parses and validates a message body.
func RecordsChangedMessageFromJSON(data []byte) (*RecordsChangedMessage, error) {
	var msg RecordsChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Collection {
	case CollectionFarmers, CollectionExpenses, CollectionAll:
	default:
		return nil, fmt.Errorf("unknown collection %q", msg.Collection)
	}
	return &msg, nil
}
