// Package shapad applies the SHA-256 message padding rule to byte streams
// and precomputes intermediate hash states so a circuit can resume
// hashing mid-stream.
package shapad

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"errors"
	"fmt"
	"regexp"
)

const BlockSize = 64

var (
	// ErrMessageTooLong means the padded message does not fit the
	// requested maximum length.
	ErrMessageTooLong = errors.New("padded message exceeds maximum length")
	// ErrMisalignedPadding means a partial hash was requested over a
	// prefix that is not a whole number of SHA-256 blocks.
	ErrMisalignedPadding = errors.New("partial hash input is not block aligned")
	// ErrSelectorNotFound means the requested precompute selector does
	// not occur in the body.
	ErrSelectorNotFound = errors.New("selector not found in body")
	// ErrRemainingBodyTooLong means the body left after the precompute
	// cut does not fit the circuit's remaining-body capacity.
	ErrRemainingBodyTooLong = errors.New("remaining body exceeds maximum length")
)

// Pad applies the SHA-256 padding rule to data and zero-extends the
// result to maxLength bytes. It returns the extended buffer and the
// message length including SHA padding but excluding the zero extension.
// maxLength must be a multiple of the 64-byte block size and large
// enough to hold the padded message.
func Pad(data []byte, maxLength int) ([]byte, int, error) {
	if maxLength%BlockSize != 0 {
		return nil, 0, fmt.Errorf("%w: max length %d is not a multiple of %d", ErrMisalignedPadding, maxLength, BlockSize)
	}
	bitLength := uint64(len(data)) * 8

	padded := make([]byte, 0, maxLength)
	padded = append(padded, data...)
	padded = append(padded, 0x80)
	for (len(padded)+8)%BlockSize != 0 {
		padded = append(padded, 0)
	}
	padded = append(padded,
		byte(bitLength>>56), byte(bitLength>>48), byte(bitLength>>40), byte(bitLength>>32),
		byte(bitLength>>24), byte(bitLength>>16), byte(bitLength>>8), byte(bitLength))

	messageLength := len(padded)
	if messageLength > maxLength {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrMessageTooLong, messageLength, maxLength)
	}
	padded = append(padded, make([]byte, maxLength-len(padded))...)
	return padded, messageLength, nil
}

// PartialHash runs SHA-256 over a whole number of blocks and returns the
// 32-byte intermediate state, the eight working words in big-endian
// order. Feeding the remaining blocks into a compression function seeded
// with this state yields the same digest as hashing the full message.
func PartialHash(data []byte) ([]byte, error) {
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisalignedPadding, len(data))
	}
	h := sha256.New()
	h.Write(data)

	// The stdlib digest marshals as magic || state || buffer || count;
	// with block-aligned input the buffer is empty and the state sits at
	// bytes 4..36.
	marshaler, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errors.New("sha256 digest does not support state export")
	}
	blob, err := marshaler.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("export sha256 state: %w", err)
	}
	state := make([]byte, 32)
	copy(state, blob[4:36])
	return state, nil
}

// GeneratePartialSha splits a zero-extended padded body into a
// precomputed prefix and a remaining suffix. bodyLength is the message
// length reported by Pad. When selectorRegex is non-empty the cut is
// placed at the last block boundary at or before the first match, so the
// matched region stays in the remaining part. The match runs over the
// body with its SHA padding trimmed back to the last CRLF, since the
// padding bytes are not part of the message text. The suffix is resized
// to exactly maxRemainingLength bytes.
func GeneratePartialSha(body []byte, bodyLength int, selectorRegex string, maxRemainingLength int) (precomputedSha []byte, remaining []byte, remainingLength int, err error) {
	selectorIndex := 0
	if selectorRegex != "" {
		pattern, err := regexp.Compile(selectorRegex)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("compile selector %q: %w", selectorRegex, err)
		}
		trimmed := body
		for len(trimmed) >= 2 && !bytes.HasSuffix(trimmed, []byte("\r\n")) {
			trimmed = trimmed[:len(trimmed)-1]
		}
		loc := pattern.FindIndex(trimmed)
		if loc == nil {
			return nil, nil, 0, fmt.Errorf("%w: %q", ErrSelectorNotFound, selectorRegex)
		}
		selectorIndex = loc[0]
	}

	cutoff := (selectorIndex / BlockSize) * BlockSize
	precompute := body[:cutoff]
	remaining = append([]byte(nil), body[cutoff:]...)

	remainingLength = bodyLength - cutoff
	if remainingLength > maxRemainingLength {
		return nil, nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrRemainingBodyTooLong, remainingLength, maxRemainingLength)
	}

	if len(remaining) < maxRemainingLength {
		remaining = append(remaining, make([]byte, maxRemainingLength-len(remaining))...)
	} else {
		remaining = remaining[:maxRemainingLength]
	}

	precomputedSha, err = PartialHash(precompute)
	if err != nil {
		return nil, nil, 0, err
	}
	return precomputedSha, remaining, remainingLength, nil
}
