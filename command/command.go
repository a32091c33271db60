// Package command extracts typed values from free-text email commands
// using placeholder templates ({string}, {uint}, {int}, {decimals},
// {ethAddr}) and ABI-encodes them for on-chain consumption.
package command

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimalSize is the scale applied to {decimals} amounts when
// the caller does not supply one.
const DefaultDecimalSize = 18

// ErrTemplateMismatch means the input does not line up with the
// template sequence: a missing token, a partial match like "123abc"
// against {uint}, or no match at all.
var ErrTemplateMismatch = errors.New("template mismatch")

const (
	stringPattern   = `\S+`
	uintPattern     = `\d+`
	intPattern      = `-?\d+`
	ethAddrPattern  = `0x[a-fA-F0-9]{40}`
	decimalsPattern = `\d+\.\d+`
)

var (
	stringRe   = regexp.MustCompile(stringPattern)
	uintRe     = regexp.MustCompile(uintPattern)
	intRe      = regexp.MustCompile(intPattern)
	ethAddrRe  = regexp.MustCompile(ethAddrPattern)
	decimalsRe = regexp.MustCompile(decimalsPattern)
)

var (
	abiString  = mustABIType("string")
	abiUint256 = mustABIType("uint256")
	abiInt256  = mustABIType("int256")
	abiAddress = mustABIType("address")
)

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", name, err))
	}
	return t
}

func packOne(t abi.Type, v any) ([]byte, error) {
	return abi.Arguments{{Type: t}}.Pack(v)
}

// TemplateValue is one extracted placeholder value.
type TemplateValue interface {
	// ABIEncode returns the value as a single ABI-encoded word or
	// dynamic type. decimalSize scales {decimals} amounts; zero selects
	// DefaultDecimalSize.
	ABIEncode(decimalSize int) ([]byte, error)
}

// StringValue is a {string} match.
type StringValue struct{ Value string }

// UintValue is a {uint} match.
type UintValue struct{ Value *big.Int }

// IntValue is an {int} match.
type IntValue struct{ Value *big.Int }

// DecimalsValue is a {decimals} match, kept as the matched text so the
// scale can be chosen at encoding time.
type DecimalsValue struct{ Value string }

// EthAddrValue is an {ethAddr} match.
type EthAddrValue struct{ Value common.Address }

func (v StringValue) ABIEncode(int) ([]byte, error) { return packOne(abiString, v.Value) }
func (v UintValue) ABIEncode(int) ([]byte, error)   { return packOne(abiUint256, v.Value) }
func (v IntValue) ABIEncode(int) ([]byte, error)    { return packOne(abiInt256, v.Value) }
func (v EthAddrValue) ABIEncode(int) ([]byte, error) {
	return packOne(abiAddress, v.Value)
}

func (v DecimalsValue) ABIEncode(decimalSize int) ([]byte, error) {
	if decimalSize == 0 {
		decimalSize = DefaultDecimalSize
	}
	scaled, err := DecimalsStrToUint(v.Value, decimalSize)
	if err != nil {
		return nil, err
	}
	return packOne(abiUint256, scaled)
}

// DecimalsStrToUint scales a decimal amount string to an integer with
// decimalSize fractional digits. The fractional part must not exceed
// decimalSize digits; amounts are never truncated.
func DecimalsStrToUint(s string, decimalSize int) (*big.Int, error) {
	before, after, _ := strings.Cut(s, ".")
	if len(after) > decimalSize {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrTemplateMismatch, s, decimalSize)
	}
	composed := before + after + strings.Repeat("0", decimalSize-len(after))
	out, ok := new(big.Int).SetString(composed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not a decimal number", ErrTemplateMismatch, s)
	}
	return out, nil
}

// ExtractTemplateValsFromCommand locates the template sequence anywhere
// in input and extracts the placeholder values from the matched region.
func ExtractTemplateValsFromCommand(input string, templates []string) ([]TemplateValue, error) {
	parts := make([]string, len(templates))
	for i, template := range templates {
		switch template {
		case "{string}":
			parts[i] = stringPattern
		case "{uint}":
			parts[i] = uintPattern
		case "{int}":
			parts[i] = intPattern
		case "{decimals}":
			parts[i] = decimalsPattern
		case "{ethAddr}":
			parts[i] = ethAddrPattern
		default:
			parts[i] = regexp.QuoteMeta(template)
		}
	}
	pattern, err := regexp.Compile(strings.Join(parts, `\s+`))
	if err != nil {
		return nil, fmt.Errorf("compile command template: %w", err)
	}
	loc := pattern.FindStringIndex(input)
	if loc == nil {
		return nil, fmt.Errorf("%w: templates do not match input", ErrTemplateMismatch)
	}
	return ExtractTemplateVals(input[loc[0]:], templates)
}

// ExtractTemplateVals splits input on whitespace and validates, token
// by token, that each placeholder consumes its whole token.
func ExtractTemplateVals(input string, templates []string) ([]TemplateValue, error) {
	tokens := strings.Fields(input)
	var vals []TemplateValue

	for i, template := range templates {
		if i >= len(tokens) {
			return nil, fmt.Errorf("%w: input has %d tokens, template needs %d", ErrTemplateMismatch, len(tokens), len(templates))
		}
		token := tokens[i]
		switch template {
		case "{string}":
			m := stringRe.FindStringIndex(token)
			if m == nil || m[0] != 0 {
				return nil, fmt.Errorf("%w: string must be the whole word, got %q", ErrTemplateMismatch, token)
			}
			vals = append(vals, StringValue{Value: stripDivSuffix(token[m[0]:m[1]])})
		case "{uint}":
			m := uintRe.FindStringIndex(token)
			if m == nil || m[0] != 0 || m[1] != len(token) {
				return nil, fmt.Errorf("%w: uint must be the whole word, got %q", ErrTemplateMismatch, token)
			}
			v, ok := new(big.Int).SetString(token[m[0]:m[1]], 10)
			if !ok {
				return nil, fmt.Errorf("%w: uint %q is not a decimal number", ErrTemplateMismatch, token)
			}
			vals = append(vals, UintValue{Value: v})
		case "{int}":
			m := intRe.FindStringIndex(token)
			if m == nil || m[0] != 0 || m[1] != len(token) {
				return nil, fmt.Errorf("%w: int must be the whole word, got %q", ErrTemplateMismatch, token)
			}
			v, ok := new(big.Int).SetString(token[m[0]:m[1]], 10)
			if !ok {
				return nil, fmt.Errorf("%w: int %q is not a decimal number", ErrTemplateMismatch, token)
			}
			vals = append(vals, IntValue{Value: v})
		case "{decimals}":
			m := decimalsRe.FindStringIndex(token)
			if m == nil || m[0] != 0 || m[1] != len(token) {
				return nil, fmt.Errorf("%w: decimals must be the whole word, got %q", ErrTemplateMismatch, token)
			}
			vals = append(vals, DecimalsValue{Value: token[m[0]:m[1]]})
		case "{ethAddr}":
			m := ethAddrRe.FindStringIndex(token)
			if m == nil || m[0] != 0 {
				return nil, fmt.Errorf("%w: address must be the whole word, got %q", ErrTemplateMismatch, token)
			}
			vals = append(vals, EthAddrValue{Value: common.HexToAddress(token[m[0]:m[1]])})
		default:
			// Literal tokens anchor the template but carry no value.
		}
	}
	return vals, nil
}

// stripDivSuffix drops an HTML closing tag a quoted-printable body can
// glue onto the last token of a command.
func stripDivSuffix(s string) string {
	if idx := strings.Index(s, "</div>"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// UintToDecimalString renders an integer amount with decimal fractional
// digits, trimming trailing zeros and the point itself when the
// fraction is empty.
func UintToDecimalString(value *big.Int, decimal int) string {
	s := value.String()
	if len(s) <= decimal {
		s = strings.Repeat("0", decimal-len(s)+1) + s
	}
	intPart := s[:len(s)-decimal]
	fracPart := strings.TrimRight(s[len(s)-decimal:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
