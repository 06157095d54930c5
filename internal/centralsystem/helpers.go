package centralsystem

import (
	"encoding/json"
	"time"
)

func decodeInto(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

func dtNow() time.Time { return time.Now() }
