package shapad

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"errors"
	"testing"
)

func TestPadShortMessage(t *testing.T) {
	data := []byte("hello")
	padded, msgLen, err := Pad(data, 128)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if msgLen != 64 {
		t.Errorf("message length = %d, want 64", msgLen)
	}
	if len(padded) != 128 {
		t.Errorf("padded length = %d, want 128", len(padded))
	}
	if !bytes.Equal(padded[:5], data) {
		t.Error("message prefix altered")
	}
	if padded[5] != 0x80 {
		t.Errorf("padding marker = %#x, want 0x80", padded[5])
	}
	// 5 bytes * 8 = 40 bits, big-endian in the last 8 bytes of the block.
	if got := binary.BigEndian.Uint64(padded[56:64]); got != 40 {
		t.Errorf("bit length = %d, want 40", got)
	}
	for i := 64; i < 128; i++ {
		if padded[i] != 0 {
			t.Fatalf("zero extension dirty at byte %d", i)
		}
	}
}

func TestPadMessageLengthFormula(t *testing.T) {
	for _, n := range []int{0, 1, 55, 56, 63, 64, 100, 511, 512} {
		data := make([]byte, n)
		_, msgLen, err := Pad(data, 1024)
		if err != nil {
			t.Fatalf("Pad(%d bytes): %v", n, err)
		}
		// Smallest multiple of 64 with room for the marker byte and the
		// 8-byte bit length.
		want := ((n + 9 + 63) / 64) * 64
		if msgLen != want {
			t.Errorf("Pad(%d bytes): message length = %d, want %d", n, msgLen, want)
		}
	}
}

func TestPadRejectsOversizedMessage(t *testing.T) {
	if _, _, err := Pad(make([]byte, 120), 128); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestPadRejectsMisalignedMax(t *testing.T) {
	if _, _, err := Pad([]byte("x"), 100); !errors.Is(err, ErrMisalignedPadding) {
		t.Errorf("expected ErrMisalignedPadding, got %v", err)
	}
}

func TestPartialHashRejectsMisalignedInput(t *testing.T) {
	if _, err := PartialHash(make([]byte, 63)); !errors.Is(err, ErrMisalignedPadding) {
		t.Errorf("expected ErrMisalignedPadding, got %v", err)
	}
}

func TestPartialHashOfNothingIsInitialState(t *testing.T) {
	state, err := PartialHash(nil)
	if err != nil {
		t.Fatalf("PartialHash: %v", err)
	}
	want := []byte{
		0x6a, 0x09, 0xe6, 0x67, 0xbb, 0x67, 0xae, 0x85,
		0x3c, 0x6e, 0xf3, 0x72, 0xa5, 0x4f, 0xf5, 0x3a,
		0x51, 0x0e, 0x52, 0x7f, 0x9b, 0x05, 0x68, 0x8c,
		0x1f, 0x83, 0xd9, 0xab, 0x5b, 0xe0, 0xcd, 0x19,
	}
	if !bytes.Equal(state, want) {
		t.Errorf("state = %x, want the SHA-256 IV", state)
	}
}

// Resuming a digest from an exported partial state over the rest of the
// message must equal hashing the whole message at once.
func TestPartialHashResumesToFullDigest(t *testing.T) {
	msg := make([]byte, 192)
	for i := range msg {
		msg[i] = byte(i * 7)
	}
	const prefix = 128

	state, err := PartialHash(msg[:prefix])
	if err != nil {
		t.Fatalf("PartialHash: %v", err)
	}

	h := sha256.New()
	blob, err := h.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal fresh digest: %v", err)
	}
	copy(blob[4:36], state)
	binary.BigEndian.PutUint64(blob[len(blob)-8:], prefix)
	if err := h.(encoding.BinaryUnmarshaler).UnmarshalBinary(blob); err != nil {
		t.Fatalf("restore digest state: %v", err)
	}
	h.Write(msg[prefix:])

	want := sha256.Sum256(msg)
	if got := h.Sum(nil); !bytes.Equal(got, want[:]) {
		t.Errorf("resumed digest = %x, want %x", got, want)
	}
}

func TestGeneratePartialSha(t *testing.T) {
	body := make([]byte, 256)
	copy(body[70:], "NEEDLE")
	copy(body[254:], "\r\n")
	padded, msgLen, err := Pad(body, 512)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}

	sha, remaining, remainingLen, err := GeneratePartialSha(padded, msgLen, "NEEDLE", 448)
	if err != nil {
		t.Fatalf("GeneratePartialSha: %v", err)
	}
	// Selector at index 70, so the cut lands on the first block boundary.
	wantSha, err := PartialHash(padded[:64])
	if err != nil {
		t.Fatalf("PartialHash: %v", err)
	}
	if !bytes.Equal(sha, wantSha) {
		t.Errorf("precomputed state = %x, want %x", sha, wantSha)
	}
	if remainingLen != msgLen-64 {
		t.Errorf("remaining length = %d, want %d", remainingLen, msgLen-64)
	}
	if len(remaining) != 448 {
		t.Errorf("remaining buffer = %d bytes, want 448", len(remaining))
	}
	if !bytes.Contains(remaining, []byte("NEEDLE")) {
		t.Error("selector fell out of the remaining body")
	}
}

func TestGeneratePartialShaWithoutSelector(t *testing.T) {
	padded, msgLen, err := Pad([]byte("abc"), 128)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	_, remaining, remainingLen, err := GeneratePartialSha(padded, msgLen, "", 128)
	if err != nil {
		t.Fatalf("GeneratePartialSha: %v", err)
	}
	if remainingLen != msgLen {
		t.Errorf("remaining length = %d, want %d", remainingLen, msgLen)
	}
	if !bytes.Equal(remaining, padded) {
		t.Error("expected the whole padded body to remain")
	}
}

func TestGeneratePartialShaErrors(t *testing.T) {
	padded, msgLen, err := Pad(make([]byte, 256), 512)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if _, _, _, err := GeneratePartialSha(padded, msgLen, "missing", 512); !errors.Is(err, ErrSelectorNotFound) {
		t.Errorf("expected ErrSelectorNotFound, got %v", err)
	}
	if _, _, _, err := GeneratePartialSha(padded, msgLen, "", 128); !errors.Is(err, ErrRemainingBodyTooLong) {
		t.Errorf("expected ErrRemainingBodyTooLong, got %v", err)
	}
}
