package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EncodeEnvelope keys the message by order id so all events of one order
// land on the same partition.
func EncodeEnvelope(ev orders.Envelope) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Key:   orders.PartitionKey(ev.CorrelationID),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.EventType)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	}, nil
}

func DecodeEnvelope(m kafka.Message) (orders.Envelope, error) {
	var ev orders.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return orders.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return ev, nil
}

// UnwrapPayload decodes an envelope payload into its concrete type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
