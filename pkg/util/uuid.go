package util

import (
	"encoding/json"

	"github.com/google/uuid"
)

// namespace of the name based ids handed out here
var namespace = uuid.MustParse("6f1c2d4e-9a0b-4c3d-8e5f-7a6b5c4d3e2f")

// ContentID names a codestream by its bytes, equal data gives equal ids
func ContentID(data []byte) string {
	return uuid.NewSHA1(namespace, data).String()
}

// HashUUID names a value by its json encoding, empty if it does not encode
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return ContentID(raw)
}

// RunID labels one run of a command in the logs
func RunID() string {
	return uuid.NewString()
}
