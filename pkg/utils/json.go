package utils

import (
	"encoding/json"
)

// MustMarshalJSON marshals v, panicking on failure. Reserved for values the
// program itself constructs, where a marshal error is a bug.
func MustMarshalJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("failed to marshal JSON: " + err.Error())
	}
	return data
}
