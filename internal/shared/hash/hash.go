// Package hash renders runtime hashes and keys as multibase text.
//
// The runtime prints DNA hashes and agent keys as base64url prefixed with
// "u". Decode accepts any multibase encoding but Encode always emits the
// base64url form so keys compare equal as strings.
package hash

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// ErrEmpty is returned when decoding an empty string
var ErrEmpty = errors.New("hash: empty input")

// Encode renders b as "u"-prefixed base64url. Empty input yields "".
func Encode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s, err := multibase.Encode(multibase.Base64url, b)
	if err != nil {
		// Base64url is always a registered encoding.
		panic(fmt.Sprintf("hash: encode: %v", err))
	}
	return s
}

// Decode parses multibase text back into bytes
func Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("hash: decode %q: %w", s, err)
	}
	return data, nil
}
