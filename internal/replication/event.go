package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResyncSignal is the wire form of a Resync event.
const ResyncSignal = "RESYNC"

// StreamEvent is either a Batch or a Resync. Consumers switch on the
// concrete type:
//
//	switch ev := ev.(type) {
//	case Batch:
//	case Resync:
//	}
type StreamEvent interface {
	streamEvent()
}

// Batch carries documents and the checkpoint of the last one. Checkpoint is
// nil only when there is no data yet.
type Batch struct {
	Documents  []Document  `json:"documents"`
	Checkpoint *Checkpoint `json:"checkpoint"`
}

// Resync tells the client to drop its checkpoint and pull everything again.
type Resync struct{}

func (Batch) streamEvent()  {}
func (Resync) streamEvent() {}

func (b Batch) MarshalJSON() ([]byte, error) {
	type batch Batch
	if b.Documents == nil {
		b.Documents = []Document{}
	}
	return json.Marshal(batch(b))
}

func (Resync) MarshalJSON() ([]byte, error) {
	return json.Marshal(ResyncSignal)
}

// DecodeStreamEvent parses the wire form of a stream event.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var signal string
		if err := json.Unmarshal(data, &signal); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}
		if signal != ResyncSignal {
			return nil, fmt.Errorf("unknown stream signal %q", signal)
		}
		return Resync{}, nil
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode stream event: %w", err)
	}
	if b.Documents == nil {
		b.Documents = []Document{}
	}
	return b, nil
}

// MultiplexedEvent is the unit sent to a client connection: one stream
// event tagged with the entity type it belongs to.
type MultiplexedEvent struct {
	Type  EntityType  `json:"type"`
	Event StreamEvent `json:"event"`
}

func (m *MultiplexedEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  EntityType      `json:"type"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, err := ParseEntityType(string(raw.Type)); err != nil {
		return err
	}
	ev, err := DecodeStreamEvent(raw.Event)
	if err != nil {
		return err
	}
	m.Type = raw.Type
	m.Event = ev
	return nil
}
