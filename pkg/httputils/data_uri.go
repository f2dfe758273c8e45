package httputils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrNotDataURI is returned when a string is neither a base64 data URI nor bare base64.
var ErrNotDataURI = errors.New("not a base64 data URI")

// DataURI is a decoded data: URI.
type DataURI struct {
	MediaType string // empty when the input was bare base64
	Data      []byte
}

// IsDataURI reports whether s looks like a data: URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

// SplitDataURI returns the media type and the base64 payload of a data URI without decoding it.
func SplitDataURI(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return "", "", ErrNotDataURI
	}
	header, payload, found := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", ErrNotDataURI
	}
	return strings.TrimSuffix(header, ";base64"), payload, nil
}

// DecodeDataURI decodes "data:<type>;base64,<payload>". Bare base64 is accepted as well,
// since some agents drop the prefix.
func DecodeDataURI(s string) (DataURI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DataURI{}, ErrNotDataURI
	}

	mediaType, payload := "", s
	if IsDataURI(s) {
		var err error
		mediaType, payload, err = SplitDataURI(s)
		if err != nil {
			return DataURI{}, err
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders omit padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return DataURI{}, fmt.Errorf("%w: %v", ErrNotDataURI, err)
		}
	}
	return DataURI{MediaType: mediaType, Data: data}, nil
}

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
