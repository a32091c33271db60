package circuit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mynextid/email-zk/codec"
	"github.com/mynextid/email-zk/dkim"
	"github.com/mynextid/email-zk/email"
	"github.com/mynextid/email-zk/regexapi"
)

// DecomposedRegex names a decomposed regex and where to apply it. The
// match index lands in the output under "<Name>RegexIdx".
type DecomposedRegex struct {
	Parts     []regexapi.RegexPart `json:"parts"`
	Name      string               `json:"name"`
	MaxLength int                  `json:"maxLength"`
	Location  string               `json:"location"`
}

// ExternalInput is a caller-supplied string signal, packed into
// ceil(MaxLength/31) decimal field strings.
type ExternalInput struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	MaxLength int    `json:"maxLength"`
}

// RegexCircuitParams tunes the generic entry point. Unlike
// EmailCircuitParams, the capacities here are required.
type RegexCircuitParams struct {
	ProverETHAddress      string `json:"proverEthAddress"`
	MaxHeaderLength       int    `json:"maxHeaderLength"`
	MaxBodyLength         int    `json:"maxBodyLength"`
	IgnoreBodyHashCheck   bool   `json:"ignoreBodyHashCheck"`
	RemoveSoftLineBreaks  bool   `json:"removeSoftLinesBreaks"`
	ShaPrecomputeSelector string `json:"shaPrecomputeSelector"`
}

// GenerateCircuitInputsWithDecomposedRegexes verifies the raw email and
// builds the witness map for a caller-defined circuit: padded header
// and body, decomposed regex match indices, and packed external
// inputs.
func GenerateCircuitInputsWithDecomposedRegexes(ctx context.Context, rawEmail string, decomposedRegexes []DecomposedRegex, externalInputs []ExternalInput, params RegexCircuitParams, resolver dkim.Resolver) (map[string]any, error) {
	parsed, err := email.Parse(ctx, []byte(rawEmail), resolver)
	if err != nil {
		return nil, err
	}
	return GenerateCircuitInputsWithDecomposedRegexesFromParsed(parsed, decomposedRegexes, externalInputs, params)
}

// GenerateCircuitInputsWithDecomposedRegexesFromParsed is the generic
// witness builder for an already verified email.
func GenerateCircuitInputsWithDecomposedRegexesFromParsed(parsed *email.ParsedEmail, decomposedRegexes []DecomposedRegex, externalInputs []ExternalInput, params RegexCircuitParams) (map[string]any, error) {
	ip := inputParams{
		body:                  []byte(parsed.CanonicalizedBody),
		header:                []byte(parsed.CanonicalizedHeader),
		rsaSignature:          codec.BytesToBigInt(parsed.Signature),
		rsaPublicKey:          codec.BytesToBigInt(parsed.PublicKey),
		shaPrecomputeSelector: params.ShaPrecomputeSelector,
		maxHeaderLength:       params.MaxHeaderLength,
		maxBodyLength:         params.MaxBodyLength,
		ignoreBodyHashCheck:   params.IgnoreBodyHashCheck,
	}
	if !params.IgnoreBodyHashCheck {
		bodyHashIdx, err := parsed.BodyHashIdxes()
		if err != nil {
			return nil, fmt.Errorf("extract body hash index: %w", err)
		}
		ip.bodyHashIdx = bodyHashIdx[0]
	}

	input, err := generateCircuitInputs(ip)
	if err != nil {
		return nil, err
	}

	inputs := map[string]any{
		"emailHeader":       bytesToInts(input.headerPadded),
		"emailHeaderLength": input.headerLen,
		"pubkey":            input.pubkey,
		"signature":         input.signature,
	}
	if input.hasBody {
		inputs["bodyHashIndex"] = input.bodyHashIdx
		inputs["precomputedSHA"] = bytesToInts(input.precomputedSha)
		inputs["emailBody"] = bytesToInts(input.bodyPadded)
		inputs["emailBodyLength"] = input.bodyLen
	}

	var cleanedBody []byte
	if input.hasBody {
		cleanedBody = email.RemoveQuotedPrintableSoftBreaks(input.bodyPadded)
	}
	if params.RemoveSoftLineBreaks && cleanedBody != nil {
		inputs["decodedEmailBodyIn"] = bytesToInts(cleanedBody)
	}

	for _, dr := range decomposedRegexes {
		config := regexapi.DecomposedRegexConfig{Parts: dr.Parts}
		var text string
		switch {
		case dr.Location == "header":
			text = string(input.headerPadded)
		case params.RemoveSoftLineBreaks:
			text = string(cleanedBody)
		default:
			text = string(input.bodyPadded)
		}
		idx, err := regexapi.EntireMatchIdxes(text, config)
		if err != nil {
			return nil, fmt.Errorf("regex %q: %w", dr.Name, err)
		}
		inputs[dr.Name+"RegexIdx"] = idx[0]
	}

	for _, ext := range externalInputs {
		value := StringToCircomBigIntBytes(ext.Value)
		signalLength := ComputeSignalLength(ext.MaxLength)
		for len(value) < signalLength {
			value = append(value, "0")
		}
		inputs[ext.Name] = value
	}

	if params.ProverETHAddress != "" {
		if !common.IsHexAddress(params.ProverETHAddress) {
			return nil, fmt.Errorf("%w: %q is not an ethereum address", codec.ErrValidation, params.ProverETHAddress)
		}
		addr := common.HexToAddress(params.ProverETHAddress)
		inputs["proverETHAddress"] = new(big.Int).SetBytes(addr.Bytes()).String()
	} else {
		inputs["proverETHAddress"] = "0"
	}

	return inputs, nil
}
