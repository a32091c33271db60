// Package commitment implements the Poseidon commitments, salts and
// nullifiers that bind email addresses, account codes and DKIM material
// to on-chain accounts.
package commitment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	"strconv"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/mynextid/email-zk/codec"
)

// MaxEmailAddrBytes is the padded email address capacity the circuits
// allocate.
const MaxEmailAddrBytes = 256

// ErrCrypto marks failures inside a hash or commitment computation.
var ErrCrypto = errors.New("crypto error")

// PoseidonFields hashes field elements with the circom-compatible
// Poseidon permutation.
func PoseidonFields(inputs []fr.Element) (fr.Element, error) {
	var out fr.Element
	bigs := make([]*big.Int, len(inputs))
	for i := range inputs {
		bigs[i] = new(big.Int)
		inputs[i].BigInt(bigs[i])
	}
	h, err := poseidon.Hash(bigs)
	if err != nil {
		return out, fmt.Errorf("%w: poseidon: %v", ErrCrypto, err)
	}
	out.SetBigInt(h)
	return out, nil
}

// PoseidonBytes hashes raw bytes by first packing them into 31-byte
// field chunks.
func PoseidonBytes(data []byte) (fr.Element, error) {
	return PoseidonFields(codec.BytesToFields(data))
}

// PaddedEmailAddr is an email address zero-padded to the circuit's fixed
// capacity, together with its original length.
type PaddedEmailAddr struct {
	PaddedBytes []byte
	AddrLen     int
}

// PadEmailAddr pads an email address to MaxEmailAddrBytes.
func PadEmailAddr(emailAddr string) (PaddedEmailAddr, error) {
	raw := []byte(emailAddr)
	if len(raw) > MaxEmailAddrBytes {
		return PaddedEmailAddr{}, fmt.Errorf("%w: email address is %d bytes, max %d", codec.ErrValidation, len(raw), MaxEmailAddrBytes)
	}
	padded := make([]byte, MaxEmailAddrBytes)
	copy(padded, raw)
	return PaddedEmailAddr{PaddedBytes: padded, AddrLen: len(raw)}, nil
}

// Fields packs the padded address into 31-byte field chunks.
func (p PaddedEmailAddr) Fields() []fr.Element {
	return codec.BytesToFields(p.PaddedBytes)
}

// Commitment hashes the address fields under a random blinding element.
func (p PaddedEmailAddr) Commitment(rand *fr.Element) (fr.Element, error) {
	inputs := append([]fr.Element{*rand}, p.Fields()...)
	return PoseidonFields(inputs)
}

// CommitmentWithSignature derives the blinding element from a signature
// and commits to the address under it.
func (p PaddedEmailAddr) CommitmentWithSignature(signature []byte) (fr.Element, error) {
	cmRand, err := ExtractRandFromSignature(signature)
	if err != nil {
		return fr.Element{}, err
	}
	return p.Commitment(&cmRand)
}

// AccountCode is the user's secret field element. It serializes as
// 0x-prefixed hex.
type AccountCode struct {
	Elem fr.Element
}

// NewAccountCode draws a fresh random account code.
func NewAccountCode() (AccountCode, error) {
	var code AccountCode
	b := make([]byte, fr.Bytes)
	if _, err := rand.Read(b); err != nil {
		return code, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	code.Elem.SetBytes(b)
	return code, nil
}

// AccountCodeFromHex parses an account code from hex, with or without a
// 0x prefix.
func AccountCodeFromHex(s string) (AccountCode, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	elem, err := codec.HexToField(s)
	if err != nil {
		return AccountCode{}, err
	}
	return AccountCode{Elem: elem}, nil
}

func (c AccountCode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(codec.FieldToHex(&c.Elem))), nil
}

func (c *AccountCode) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: account code must be a string: %v", codec.ErrValidation, err)
	}
	code, err := AccountCodeFromHex(s)
	if err != nil {
		return err
	}
	*c = code
	return nil
}

// Commitment binds the account code to an address and the relayer's
// randomness hash.
func (c AccountCode) Commitment(emailAddr PaddedEmailAddr, relayerRandHash *fr.Element) (fr.Element, error) {
	inputs := append([]fr.Element{c.Elem}, emailAddr.Fields()...)
	inputs = append(inputs, *relayerRandHash)
	return PoseidonFields(inputs)
}

// AccountSalt deterministically derives an account address from an email
// address and an account code. It serializes as 0x-prefixed hex.
type AccountSalt struct {
	Elem fr.Element
}

// NewAccountSalt hashes the address fields, the account code and a
// trailing zero.
func NewAccountSalt(emailAddr PaddedEmailAddr, code AccountCode) (AccountSalt, error) {
	var zero fr.Element
	inputs := append(emailAddr.Fields(), code.Elem, zero)
	h, err := PoseidonFields(inputs)
	if err != nil {
		return AccountSalt{}, err
	}
	return AccountSalt{Elem: h}, nil
}

// AccountSaltFromBytes derives a salt from opaque bytes instead of an
// email address.
func AccountSaltFromBytes(data []byte) (AccountSalt, error) {
	var zero fr.Element
	inputs := append(codec.BytesToFields(data), zero)
	h, err := PoseidonFields(inputs)
	if err != nil {
		return AccountSalt{}, err
	}
	return AccountSalt{Elem: h}, nil
}

func (s AccountSalt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(codec.FieldToHex(&s.Elem))), nil
}

// RelayerRand is the relayer's private random field element.
type RelayerRand struct {
	Elem fr.Element
}

// NewRelayerRand draws fresh relayer randomness.
func NewRelayerRand() (RelayerRand, error) {
	var r RelayerRand
	b := make([]byte, fr.Bytes)
	if _, err := rand.Read(b); err != nil {
		return r, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	r.Elem.SetBytes(b)
	return r, nil
}

// RelayerRandFromSeed derives relayer randomness from a seed.
func RelayerRandFromSeed(seed []byte) (RelayerRand, error) {
	h, err := PoseidonBytes(seed)
	if err != nil {
		return RelayerRand{}, err
	}
	return RelayerRand{Elem: h}, nil
}

// Hash is the public image of the relayer randomness.
func (r RelayerRand) Hash() (fr.Element, error) {
	return PoseidonFields([]fr.Element{r.Elem})
}

// ExtractRandFromSignature derives deterministic commitment randomness
// from a big-endian RSA signature: the bytes are reversed to little
// endian, chunked the way the circuit chunks them, and hashed together
// with a trailing one.
func ExtractRandFromSignature(signature []byte) (fr.Element, error) {
	reversed := make([]byte, len(signature))
	for i, b := range signature {
		reversed[len(signature)-1-i] = b
	}
	inputs := codec.BytesChunkFields(reversed, codec.CircomBigintN, 2, codec.CircomBigintK)
	var one fr.Element
	one.SetOne()
	inputs = append(inputs, one)
	return PoseidonFields(inputs)
}

// PublicKeyHash hashes an RSA modulus given in little-endian bytes, the
// value the circuits expose as their public key commitment.
func PublicKeyHash(publicKeyN []byte) (fr.Element, error) {
	inputs := codec.BytesChunkFields(publicKeyN, codec.CircomBigintN, 2, codec.CircomBigintK)
	return PoseidonFields(inputs)
}

// EmailNullifier hashes a little-endian signature twice, yielding the
// replay-protection nullifier.
func EmailNullifier(signatureLE []byte) (fr.Element, error) {
	inputs := codec.BytesChunkFields(signatureLE, codec.CircomBigintN, 2, codec.CircomBigintK)
	signRand, err := PoseidonFields(inputs)
	if err != nil {
		return fr.Element{}, err
	}
	return PoseidonFields([]fr.Element{signRand})
}

// CalculateAccountSalt is the string-in, string-out convenience used by
// the HTTP API and CLI.
func CalculateAccountSalt(emailAddr, accountCode string) (string, error) {
	padded, err := PadEmailAddr(emailAddr)
	if err != nil {
		return "", err
	}
	code, err := AccountCodeFromHex(accountCode)
	if err != nil {
		return "", err
	}
	salt, err := NewAccountSalt(padded, code)
	if err != nil {
		return "", err
	}
	return codec.FieldToHex(&salt.Elem), nil
}

// CalculateDefaultHash produces a short, non-cryptographic identifier
// for a string, used for request ids.
func CalculateDefaultHash(input string) string {
	h := fnv.New64a()
	h.Write([]byte(input))
	return strconv.FormatUint(h.Sum64(), 10)
}
