// Package edgewire implements the wire framing for the local edge
// protocol: a TCP connection carrying a stream of events, each one a
// JSON header line declaring the event type and the length of an
// optional binary payload that follows it.
package edgewire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Event types exchanged over the edge wire.
const (
	TypeDescribe    = "describe"
	TypeAudioStart  = "audio-start"
	TypeAudioChunk  = "audio-chunk"
	TypeAudioStop   = "audio-stop"
)

// header is the line-delimited JSON frame header. Data carries small
// inline fields (rate, width, channels, timestamp); PayloadLength
// declares how many raw bytes of binary payload (PCM16 audio) follow the
// header line, 0 meaning none.
type header struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

// Event is a decoded edge-wire event.
type Event struct {
	Type    string
	Rate    int
	Width   int
	Channels int
	Payload []byte
}

type audioStartData struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

type audioChunkData struct {
	Rate      int `json:"rate"`
	Timestamp int `json:"timestamp"`
}

// MaxPayloadSize bounds a single audio-chunk payload to guard against a
// malformed or hostile peer declaring an unbounded payload_length.
const MaxPayloadSize = 16 * 1024 * 1024

// ReadEvent reads one event frame from r: a JSON header line followed by
// PayloadLength raw bytes, if any.
func ReadEvent(r *bufio.Reader) (*Event, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, err
		}
		return nil, fmt.Errorf("edgewire: read header: %w", err)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("edgewire: decode header: %w", err)
	}

	if h.PayloadLength < 0 || h.PayloadLength > MaxPayloadSize {
		return nil, fmt.Errorf("edgewire: payload_length %d out of bounds", h.PayloadLength)
	}

	ev := &Event{Type: h.Type}

	switch h.Type {
	case TypeAudioStart:
		var d audioStartData
		if len(h.Data) > 0 {
			if err := json.Unmarshal(h.Data, &d); err != nil {
				return nil, fmt.Errorf("edgewire: decode audio-start data: %w", err)
			}
		}
		ev.Rate, ev.Width, ev.Channels = d.Rate, d.Width, d.Channels
	case TypeAudioChunk:
		var d audioChunkData
		if len(h.Data) > 0 {
			if err := json.Unmarshal(h.Data, &d); err != nil {
				return nil, fmt.Errorf("edgewire: decode audio-chunk data: %w", err)
			}
		}
		ev.Rate = d.Rate
	}

	if h.PayloadLength > 0 {
		payload := make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("edgewire: read payload: %w", err)
		}
		ev.Payload = payload
	}

	return ev, nil
}

// WriteAudioStart writes an audio-start event announcing the output
// stream's sample rate (PCM16 mono).
func WriteAudioStart(w *bufio.Writer, rateHz int) error {
	return writeHeader(w, header{
		Type: TypeAudioStart,
		Data: mustMarshal(audioStartData{Rate: rateHz, Width: 2, Channels: 1}),
	}, nil)
}

// WriteAudioChunk writes an audio-chunk event carrying pcm16 as its
// binary payload.
func WriteAudioChunk(w *bufio.Writer, rateHz int, pcm16 []byte) error {
	return writeHeader(w, header{
		Type:          TypeAudioChunk,
		Data:          mustMarshal(audioChunkData{Rate: rateHz}),
		PayloadLength: len(pcm16),
	}, pcm16)
}

// WriteAudioStop writes an audio-stop event with no payload.
func WriteAudioStop(w *bufio.Writer) error {
	return writeHeader(w, header{Type: TypeAudioStop}, nil)
}

func writeHeader(w *bufio.Writer, h header, payload []byte) error {
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("edgewire: encode header: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("edgewire: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("edgewire: write payload: %w", err)
		}
	}
	return w.Flush()
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("edgewire: marshal %T: %v", v, err))
	}
	return b
}
