package codec

import (
	"crypto/rand"
	"errors"
	"math/big"
	"testing"
)

func TestHexToFieldRoundTrip(t *testing.T) {
	in := "0x0102030405060708091011121314151617181920212223242526272829303132"
	elem, err := HexToField(in)
	if err != nil {
		t.Fatalf("HexToField: %v", err)
	}
	if got := FieldToHex(&elem); got != in {
		t.Errorf("round trip mismatch: got %s, want %s", got, in)
	}
}

func TestHexToFieldRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"missing prefix", "0102030405060708091011121314151617181920212223242526272829303132"},
		{"odd length", "0x010"},
		{"not hex", "0xzz02030405060708091011121314151617181920212223242526272829303132"},
		{"too short", "0x0102"},
		{"above modulus", "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := HexToField(tc.input); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBytesToFields(t *testing.T) {
	// 33 bytes splits into a full 31-byte chunk and a 2-byte tail.
	data := make([]byte, 33)
	for i := range data {
		data[i] = byte(i + 1)
	}
	fields := BytesToFields(data)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	// Little-endian: first chunk is sum of data[i] << 8i.
	want := new(big.Int)
	for i := 30; i >= 0; i-- {
		want.Lsh(want, 8)
		want.Or(want, big.NewInt(int64(data[i])))
	}
	got := new(big.Int)
	fields[0].BigInt(got)
	if got.Cmp(want) != 0 {
		t.Errorf("first chunk mismatch: got %s, want %s", got, want)
	}

	wantTail := big.NewInt(int64(data[31]) | int64(data[32])<<8)
	gotTail := new(big.Int)
	fields[1].BigInt(gotTail)
	if gotTail.Cmp(wantTail) != 0 {
		t.Errorf("tail chunk mismatch: got %s, want %s", gotTail, wantTail)
	}

	if BytesToFields(nil) != nil {
		t.Error("expected no fields for empty input")
	}
}

func TestBytesChunkFieldsMatchesBitDecomposition(t *testing.T) {
	// One RSA-2048 signature worth of bytes, little-endian, chunked the
	// way the circuit does: 121-bit words, two words per field.
	sig := make([]byte, 256)
	if _, err := rand.Read(sig); err != nil {
		t.Fatal(err)
	}
	fields := BytesChunkFields(sig, 121, 2, CircomBigintK)
	if len(fields) != 9 {
		t.Fatalf("expected 9 fields for 17 words, got %d", len(fields))
	}

	full := new(big.Int)
	for i := len(sig) - 1; i >= 0; i-- {
		full.Lsh(full, 8)
		full.Or(full, big.NewInt(int64(sig[i])))
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 121), big.NewInt(1))
	for i, f := range fields {
		lo := new(big.Int).Rsh(full, uint(242*i))
		lo.And(lo, mask)
		hi := new(big.Int).Rsh(full, uint(242*i+121))
		hi.And(hi, mask)
		want := hi.Lsh(hi, 121).Add(hi, lo)
		got := new(big.Int)
		f.BigInt(got)
		if got.Cmp(want) != 0 {
			t.Errorf("field %d mismatch: got %s, want %s", i, got, want)
		}
	}
}

func TestCircomBigIntRoundTrip(t *testing.T) {
	max := new(big.Int).Lsh(big.NewInt(1), CircomBigintN*CircomBigintK)
	for i := 0; i < 16; i++ {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			t.Fatal(err)
		}
		chunks := ToCircomBigIntBytes(num)
		if len(chunks) != CircomBigintK {
			t.Fatalf("expected %d chunks, got %d", CircomBigintK, len(chunks))
		}
		back, err := FromCircomBigIntBytes(chunks)
		if err != nil {
			t.Fatalf("FromCircomBigIntBytes: %v", err)
		}
		if back.Cmp(num) != 0 {
			t.Errorf("round trip mismatch: got %s, want %s", back, num)
		}
	}
}

func TestCircomBigIntKnownValue(t *testing.T) {
	chunks := ToCircomBigIntBytes(big.NewInt(42))
	if chunks[0] != "42" {
		t.Errorf("first chunk = %s, want 42", chunks[0])
	}
	for i := 1; i < CircomBigintK; i++ {
		if chunks[i] != "0" {
			t.Errorf("chunk %d = %s, want 0", i, chunks[i])
		}
	}
}

func TestFromCircomBigIntBytesRejectsGarbage(t *testing.T) {
	if _, err := FromCircomBigIntBytes([]string{"12", "not-a-number"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestU64ToBytes32(t *testing.T) {
	out := U64ToBytes32(0x0102030405060708)
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8} {
		if out[i] != want {
			t.Errorf("byte %d = %#x, want %#x", i, out[i], want)
		}
	}
	for i := 8; i < 32; i++ {
		if out[i] != 0 {
			t.Errorf("byte %d = %#x, want 0", i, out[i])
		}
	}
}

func TestHexToBigInt(t *testing.T) {
	n, err := HexToBigInt("0x01ff")
	if err != nil {
		t.Fatalf("HexToBigInt: %v", err)
	}
	if n.Int64() != 511 {
		t.Errorf("got %s, want 511", n)
	}
	if _, err := HexToBigInt("01ff"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestKeccak256(t *testing.T) {
	// Known Keccak-256 vectors.
	empty := Keccak256(nil)
	if got := Bytes32ToHex(empty); got != "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470" {
		t.Errorf("Keccak256(nil) = %s", got)
	}
	abc := Keccak256([]byte("abc"))
	if got := Bytes32ToHex(abc); got != "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45" {
		t.Errorf(`Keccak256("abc") = %s`, got)
	}
}
