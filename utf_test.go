package horse64

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestUTF8RoundTripValidStrings checks that any valid UTF-8 string
// survives DecodeUTF8 -> EncodeUTF32 byte-for-byte, without needing the
// surrogate-escape fallback at all.
func TestUTF8RoundTripValidStrings(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("decode/encode round-trips valid UTF-8", prop.ForAll(
		func(s string) bool {
			units, err := DecodeUTF8([]byte(s), false)
			if err != nil {
				return false
			}
			return bytes.Equal(EncodeUTF32(units), []byte(s))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestUTF8SurrogateEscapeNeverFails checks that arbitrary byte slices —
// including invalid UTF-8 — always decode successfully under
// surrogateEscape=true and round-trip back to the original bytes.
func TestUTF8SurrogateEscapeNeverFails(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("surrogate-escaped decode always succeeds and round-trips", prop.ForAll(
		func(bs []byte) bool {
			units, err := DecodeUTF8(bs, true)
			if err != nil {
				return false
			}
			return bytes.Equal(EncodeUTF32(units), bs)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestDecodeUTF8RejectsInvalidBytesWithoutEscape(t *testing.T) {
	_, err := DecodeUTF8([]byte{0xff, 0xfe}, false)
	if err != ErrInvalidEncoding {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}
