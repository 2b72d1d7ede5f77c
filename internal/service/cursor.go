package service

import (
	"encoding/base64"
	"strconv"

	"github.com/roomcast/internal/apperr"
)

// Cursor is an opaque history position: the seq of the last message the
// caller has seen. Seq equals commit order per room, so paging strictly
// after it never skips a row committed later, regardless of timestamp
// skew between writers.
type Cursor struct {
	Seq int64
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(c.Seq, 10)))
}

// DecodeCursor parses a token produced by Encode. An empty token is the
// zero cursor (history from the beginning); a malformed one is a
// validation error, never silently treated as zero.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, apperr.Validationf("malformed cursor")
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq < 0 {
		return Cursor{}, apperr.Validationf("malformed cursor")
	}
	return Cursor{Seq: seq}, nil
}
