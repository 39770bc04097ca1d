// Package stream encodes wire events as server-sent event frames.
package stream

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// Done is the terminal frame of every stream.
var Done = []byte("data: [DONE]\n\n")

// Encode returns the frame for one event.
func Encode(ev domain.WireEvent) ([]byte, error) {
	if ev == nil {
		return nil, &domain.SerializationError{Type: "unknown", Err: fmt.Errorf("nil event")}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, &domain.SerializationError{Type: ev.EventType(), Err: err}
	}
	return frame(data), nil
}

// Frames turns an event sequence into a frame sequence. It yields one frame
// per event followed by Done. An event that fails to encode is replaced by an
// error frame. A panic raised by the upstream sequence is converted into an
// error frame and Done still follows; panics raised by the consumer are
// propagated unchanged.
func Frames(events iter.Seq[domain.WireEvent]) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		var stopped, inYield bool
		emit := func(b []byte) bool {
			inYield = true
			ok := yield(b)
			inYield = false
			if !ok {
				stopped = true
			}
			return ok
		}

		defer func() {
			if r := recover(); r != nil {
				if inYield {
					panic(r)
				}
				if stopped {
					return
				}
				if !emit(errorFrame(fmt.Sprintf("Stream error: %v", r))) {
					return
				}
			}
			if !stopped {
				emit(Done)
			}
		}()

		for ev := range events {
			b, err := Encode(ev)
			if err != nil {
				b = errorFrame(err.Error())
			}
			if !emit(b) {
				return
			}
		}
	}
}

func errorFrame(msg string) []byte {
	data, err := json.Marshal(domain.NewError(time.Now().UTC(), msg))
	if err != nil {
		// ErrorEvent only holds strings and a time.
		panic(err)
	}
	return frame(data)
}

func frame(data []byte) []byte {
	b := make([]byte, 0, len(data)+8)
	b = append(b, "data: "...)
	b = append(b, data...)
	return append(b, '\n', '\n')
}
