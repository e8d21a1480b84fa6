package service

import (
	"errors"
	"testing"

	"github.com/threadswap/chat-service/tools/errs"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, seq := range []int64{1, 42, 999999999} {
		got, err := decodeCursor(encodeCursor(seq))
		if err != nil {
			t.Fatalf("decode(encode(%d)): %v", seq, err)
		}
		if got != seq {
			t.Errorf("round trip %d -> %d", seq, got)
		}
	}
}

func TestCursorEmptyMeansNewest(t *testing.T) {
	got, err := decodeCursor("")
	if err != nil {
		t.Fatalf("empty cursor: %v", err)
	}
	if got != 0 {
		t.Errorf("empty cursor = %d, want 0", got)
	}
}

func TestCursorMalformed(t *testing.T) {
	for _, c := range []string{"%%%", "aGVsbG8", "-"} {
		if _, err := decodeCursor(c); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Errorf("decodeCursor(%q): got %v, want InvalidArgument", c, err)
		}
	}
}
