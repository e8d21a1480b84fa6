package service

import (
	"encoding/base64"
	"strconv"

	"github.com/threadswap/chat-service/tools/errs"
)

// Page cursors are opaque to clients: a base64 wrapper around the boundary
// seq. Anything that fails to round-trip is a client bug, reported as
// InvalidArgument rather than silently treated as "newest page".

func encodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errs.ErrInvalidArgument.WithDetailf("malformed cursor %q", cursor).Wrap()
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq <= 0 {
		return 0, errs.ErrInvalidArgument.WithDetailf("malformed cursor %q", cursor).Wrap()
	}
	return seq, nil
}
