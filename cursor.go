package dataset

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// Cursor is an opaque position in a query result stream.
type Cursor []byte

// String returns a URL-safe form of c, suitable for DecodeCursor.
func (c Cursor) String() string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(c), "=")
}

// DecodeCursor decodes a cursor produced by Cursor.String.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return nil, nil
	}
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "dataset: invalid cursor")
	}
	return Cursor(b), nil
}
