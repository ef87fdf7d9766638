package tracker

import (
	"bytes"
	"encoding/json"
)

func containsName(body []byte, name string) bool {
	var payload struct {
		Name string `json:"name"`
	}
	return json.Unmarshal(body, &payload) == nil && payload.Name == name
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
