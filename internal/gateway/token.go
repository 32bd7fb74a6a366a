package gateway

import (
	"encoding/json"
	"strings"
)

// ParseTokenFrame extracts the token from the client's auth frame. The frame
// is either a bare token string or a {"token": "..."} envelope.
func ParseTokenFrame(frame []byte) string {
	var envelope struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(frame, &envelope); err == nil && envelope.Token != "" {
		return envelope.Token
	}

	var quoted string
	if err := json.Unmarshal(frame, &quoted); err == nil {
		return quoted
	}

	return strings.TrimSpace(string(frame))
}
