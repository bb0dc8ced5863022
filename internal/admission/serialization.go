// Package admission handles event serialization.
package admission

import "encoding/json"

// MarshalEvent serializes a sink event.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes a sink event.
func UnmarshalEvent(b []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(b, &event)
	return event, err
}
