package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Database ids are never exposed directly; the API encodes them as
// standard base64 of the decimal representation, so id 1 travels as
// "MQ==". Clients treat the encoded form as opaque.

// EncodeID converts a database id to its public form.
func EncodeID(id int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeID converts a public id back to a database id.
func DecodeID(encoded string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", encoded, err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", encoded, err)
	}
	return id, nil
}
