package ws

import (
	"encoding/json"
	"time"

	"dappforge/internal/stream"
)

func marshalEvent(ev stream.Event) ([]byte, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return json.Marshal(ev)
}
