package chargepoint

import (
	"encoding/json"
	"time"
)

// defaultHandlerTimeout bounds the CS-triggered actions (RemoteStart/Stop,
// TriggerMessage) that this runtime runs on a detached goroutine rather
// than the dispatcher's call path.
const defaultHandlerTimeout = 30 * time.Second

func decodeInto(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func nowFunc() time.Time {
	return time.Now()
}
