// Package codec converts between raw bytes, big integers, BN254 field
// elements and the chunked decimal representation the circom bigint
// gadgets expect.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// CircomBigintN is the chunk width in bits of the circom bigint encoding.
	CircomBigintN = 121
	// CircomBigintK is the number of chunks of the circom bigint encoding.
	CircomBigintK = 17
	// BytesPerField is how many bytes fit into one field element with one
	// byte of headroom, so every chunk stays below the BN254 modulus.
	BytesPerField = 31
)

// ErrValidation marks malformed caller input: bad hex, wrong length,
// non-canonical field values.
var ErrValidation = errors.New("validation error")

// HexToField parses a 0x-prefixed, 32-byte big-endian hex string into a
// canonical field element.
func HexToField(input string) (fr.Element, error) {
	var elem fr.Element
	if !strings.HasPrefix(input, "0x") {
		return elem, fmt.Errorf("%w: %q must be a hex string with 0x prefix", ErrValidation, input)
	}
	raw, err := hex.DecodeString(input[2:])
	if err != nil {
		return elem, fmt.Errorf("%w: %q is invalid hex: %v", ErrValidation, input, err)
	}
	if len(raw) != fr.Bytes {
		return elem, fmt.Errorf("%w: %q must decode to %d bytes but is %d", ErrValidation, input, fr.Bytes, len(raw))
	}
	if err := elem.SetBytesCanonical(raw); err != nil {
		return elem, fmt.Errorf("%w: %q is not a canonical field value: %v", ErrValidation, input, err)
	}
	return elem, nil
}

// FieldToHex is the inverse of HexToField. It always succeeds.
func FieldToHex(elem *fr.Element) string {
	b := elem.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// BytesToFields splits the input into 31-byte little-endian chunks and
// lifts each chunk into a field element. The last chunk is zero-padded.
func BytesToFields(data []byte) []fr.Element {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + BytesPerField - 1) / BytesPerField
	fields := make([]fr.Element, 0, n)
	for off := 0; off < len(data); off += BytesPerField {
		end := off + BytesPerField
		if end > len(data) {
			end = len(data)
		}
		fields = append(fields, leBytesToField(data[off:end]))
	}
	return fields
}

// 31 bytes or fewer, little-endian layout.
func leBytesToField(chunk []byte) fr.Element {
	var be [fr.Bytes]byte
	for i, b := range chunk {
		be[fr.Bytes-1-i] = b
	}
	var elem fr.Element
	elem.SetBytes(be[:])
	return elem
}

// BytesChunkFields zero-pads the input to maxChunkCount*chunkBitSize/8
// bytes, decomposes it into chunkBitSize-wide little-endian words and
// regroups numChunksPerField consecutive words into one field element via
// positional-weight summation. The bit decomposition must match the
// circuit's own, or Poseidon hashes over the result will diverge.
func BytesChunkFields(data []byte, chunkBitSize, numChunksPerField, maxChunkCount int) []fr.Element {
	maxBytes := maxChunkCount * chunkBitSize / 8
	buf := make([]byte, len(data))
	copy(buf, data)
	for len(buf) < maxBytes {
		buf = append(buf, 0)
	}

	// The bytes are a little-endian integer; word i is bit range
	// [i*chunkBitSize, (i+1)*chunkBitSize).
	acc := new(big.Int)
	for i := len(buf) - 1; i >= 0; i-- {
		acc.Lsh(acc, 8)
		acc.Or(acc, big.NewInt(int64(buf[i])))
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(chunkBitSize))
	mask.Sub(mask, big.NewInt(1))

	numWords := (len(buf)*8 + chunkBitSize - 1) / chunkBitSize
	words := make([]*big.Int, numWords)
	for i := 0; i < numWords; i++ {
		w := new(big.Int).Rsh(acc, uint(i*chunkBitSize))
		words[i] = w.And(w, mask)
	}

	fields := make([]fr.Element, 0, (numWords+numChunksPerField-1)/numChunksPerField)
	for i := 0; i < numWords; i += numChunksPerField {
		sum := new(big.Int)
		for j := 0; j < numChunksPerField && i+j < numWords; j++ {
			term := new(big.Int).Lsh(words[i+j], uint(chunkBitSize*j))
			sum.Add(sum, term)
		}
		var elem fr.Element
		elem.SetBigInt(sum)
		fields = append(fields, elem)
	}
	return fields
}

// ToCircomBigIntBytes encodes a non-negative big integer as CircomBigintK
// decimal-string chunks of CircomBigintN bits each, least significant
// chunk first. Only integers up to CircomBigintK*CircomBigintN bits
// round-trip; RSA-2048 moduli and signatures fit.
func ToCircomBigIntBytes(num *big.Int) []string {
	return bigIntToChunkedBytes(num, CircomBigintN, CircomBigintK)
}

func bigIntToChunkedBytes(num *big.Int, bitsPerChunk, numChunks int) []string {
	chunks := make([]string, 0, numChunks)
	mask := new(big.Int).Lsh(big.NewInt(1), uint(bitsPerChunk))
	mask.Sub(mask, big.NewInt(1))
	rem := new(big.Int).Set(num)
	for i := 0; i < numChunks; i++ {
		chunk := new(big.Int).And(rem, mask)
		chunks = append(chunks, chunk.String())
		rem.Rsh(rem, uint(bitsPerChunk))
	}
	return chunks
}

// FromCircomBigIntBytes is the inverse of ToCircomBigIntBytes.
func FromCircomBigIntBytes(chunks []string) (*big.Int, error) {
	num := new(big.Int)
	for i := len(chunks) - 1; i >= 0; i-- {
		chunk, ok := new(big.Int).SetString(chunks[i], 10)
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d (%q) is not a decimal integer", ErrValidation, i, chunks[i])
		}
		num.Lsh(num, CircomBigintN)
		num.Add(num, chunk)
	}
	return num, nil
}

// BytesToBigInt folds big-endian bytes into an unsigned big integer.
func BytesToBigInt(data []byte) *big.Int {
	return new(big.Int).SetBytes(data)
}

// FieldToBytes32 returns the big-endian 32-byte form of a field element.
func FieldToBytes32(elem *fr.Element) [32]byte {
	return elem.Bytes()
}

// Bytes32ToField parses a big-endian 32-byte value into a canonical field
// element.
func Bytes32ToField(b [32]byte) (fr.Element, error) {
	var elem fr.Element
	if err := elem.SetBytesCanonical(b[:]); err != nil {
		return elem, fmt.Errorf("%w: not a canonical field value: %v", ErrValidation, err)
	}
	return elem, nil
}

// U64ToBytes32 places a 64-bit value in the first 8 bytes of a
// zero-filled 32-byte array, big-endian.
func U64ToBytes32(v uint64) [32]byte {
	var out [32]byte
	out[0] = byte(v >> 56)
	out[1] = byte(v >> 48)
	out[2] = byte(v >> 40)
	out[3] = byte(v >> 32)
	out[4] = byte(v >> 24)
	out[5] = byte(v >> 16)
	out[6] = byte(v >> 8)
	out[7] = byte(v)
	return out
}

// Bytes32ToHex renders a 32-byte value as 0x-prefixed hex.
func Bytes32ToHex(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

// HexToBigInt parses 0x-prefixed hex of any even length into an unsigned
// big integer.
func HexToBigInt(input string) (*big.Int, error) {
	if !strings.HasPrefix(input, "0x") {
		return nil, fmt.Errorf("%w: %q must be a hex string with 0x prefix", ErrValidation, input)
	}
	raw, err := hex.DecodeString(input[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q is invalid hex: %v", ErrValidation, input, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// Keccak256 hashes data with Keccak-256 and returns the 32-byte digest.
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}
