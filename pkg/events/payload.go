package events

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload serialises event fields as a protobuf google.protobuf.Struct.
// Values must be representable by structpb (strings, float64/int64, bools, nil, nested maps and slices).
func EncodePayload(fields map[string]any) ([]byte, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build event payload: %w", err)
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return payload, nil
}

// DecodePayload is the inverse of EncodePayload. Numbers come back as float64.
func DecodePayload(payload []byte) (map[string]any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return msg.AsMap(), nil
}
