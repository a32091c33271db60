// Package circuit assembles the JSON witness inputs consumed by the
// email authentication circuits. The key names and field shapes are a
// bit-for-bit contract with the compiled circuits.
package circuit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/mynextid/email-zk/codec"
	"github.com/mynextid/email-zk/commitment"
	"github.com/mynextid/email-zk/dkim"
	"github.com/mynextid/email-zk/email"
	"github.com/mynextid/email-zk/shapad"
)

// Default capacities of the circuit's header and body signals.
const (
	MaxHeaderPaddedBytes = 1024
	MaxBodyPaddedBytes   = 1536
)

// EmailCircuitParams tunes input generation for the authentication
// circuit. Zero values select the defaults: header capacity
// MaxHeaderPaddedBytes, body capacity MaxBodyPaddedBytes, body hash
// checked, no precompute selector.
type EmailCircuitParams struct {
	IgnoreBodyHashCheck   bool   `json:"ignore_body_hash_check"`
	MaxHeaderLength       int    `json:"max_header_length"`
	MaxBodyLength         int    `json:"max_body_length"`
	ShaPrecomputeSelector string `json:"sha_precompute_selector"`
}

func (p *EmailCircuitParams) withDefaults() EmailCircuitParams {
	out := EmailCircuitParams{}
	if p != nil {
		out = *p
	}
	if out.MaxHeaderLength == 0 {
		out.MaxHeaderLength = MaxHeaderPaddedBytes
	}
	if out.MaxBodyLength == 0 {
		out.MaxBodyLength = MaxBodyPaddedBytes
	}
	return out
}

// inputParams collects everything generateCircuitInputs needs once the
// email has been resolved and the options normalized.
type inputParams struct {
	body                  []byte
	header                []byte
	bodyHashIdx           int
	rsaSignature          *big.Int
	rsaPublicKey          *big.Int
	shaPrecomputeSelector string
	maxHeaderLength       int
	maxBodyLength         int
	ignoreBodyHashCheck   bool
}

// circuitInput is the shared core of every witness: padded header,
// chunked RSA material and, unless the body hash check is skipped, the
// partial-SHA split of the padded body.
type circuitInput struct {
	headerPadded   []byte
	pubkey         []string
	signature      []string
	headerLen      int
	precomputedSha []byte
	bodyPadded     []byte
	bodyLen        int
	bodyHashIdx    int
	hasBody        bool
}

func generateCircuitInputs(params inputParams) (*circuitInput, error) {
	headerPadded, headerLen, err := shapad.Pad(params.header, params.maxHeaderLength)
	if err != nil {
		return nil, fmt.Errorf("pad header: %w", err)
	}

	input := &circuitInput{
		headerPadded: headerPadded,
		pubkey:       codec.ToCircomBigIntBytes(params.rsaPublicKey),
		signature:    codec.ToCircomBigIntBytes(params.rsaSignature),
		headerLen:    headerLen,
	}
	if params.ignoreBodyHashCheck {
		return input, nil
	}

	// The body is padded to whichever is larger: the circuit capacity or
	// the exact SHA padding length, so over-long bodies still pad
	// cleanly and the partial-SHA split can reject them against the
	// real capacity afterwards.
	bodyShaLength := ((len(params.body) + 63 + 65) / 64) * 64
	bodyPadded, bodyLen, err := shapad.Pad(params.body, max(params.maxBodyLength, bodyShaLength))
	if err != nil {
		return nil, fmt.Errorf("pad body: %w", err)
	}
	precomputedSha, bodyRemaining, bodyRemainingLen, err := shapad.GeneratePartialSha(
		bodyPadded, bodyLen, params.shaPrecomputeSelector, params.maxBodyLength)
	if err != nil {
		return nil, fmt.Errorf("partial sha: %w", err)
	}

	input.precomputedSha = precomputedSha
	input.bodyPadded = bodyRemaining
	input.bodyLen = bodyRemainingLen
	input.bodyHashIdx = params.bodyHashIdx
	input.hasBody = true
	return input, nil
}

// GenerateEmailCircuitInput verifies the raw email and serializes the
// witness for the account-bound authentication circuit.
func GenerateEmailCircuitInput(ctx context.Context, rawEmail string, accountCode *commitment.AccountCode, params *EmailCircuitParams, resolver dkim.Resolver) ([]byte, error) {
	parsed, err := email.Parse(ctx, []byte(rawEmail), resolver)
	if err != nil {
		return nil, err
	}
	return GenerateEmailCircuitInputFromParsed(parsed, accountCode, params)
}

// GenerateEmailCircuitInputFromParsed builds the authentication witness
// from an already verified email.
//
// From-address and domain extraction are required; so is the body hash
// index whenever the body hash check is active, and the subject index
// whenever the body is omitted. Invitation code, command and timestamp
// are optional email features, so their indices default to zero when
// the pattern is absent.
func GenerateEmailCircuitInputFromParsed(parsed *email.ParsedEmail, accountCode *commitment.AccountCode, params *EmailCircuitParams) ([]byte, error) {
	opts := params.withDefaults()

	ip := inputParams{
		body:                  []byte(parsed.CanonicalizedBody),
		header:                []byte(parsed.CanonicalizedHeader),
		rsaSignature:          codec.BytesToBigInt(parsed.Signature),
		rsaPublicKey:          codec.BytesToBigInt(parsed.PublicKey),
		shaPrecomputeSelector: opts.ShaPrecomputeSelector,
		maxHeaderLength:       opts.MaxHeaderLength,
		maxBodyLength:         opts.MaxBodyLength,
		ignoreBodyHashCheck:   opts.IgnoreBodyHashCheck,
	}
	if !opts.IgnoreBodyHashCheck {
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

	fromAddrIdx, err := parsed.FromAddrIdxes()
	if err != nil {
		return nil, fmt.Errorf("extract from address index: %w", err)
	}
	domainIdx, err := parsed.EmailDomainIdxes()
	if err != nil {
		return nil, fmt.Errorf("extract domain index: %w", err)
	}

	timestampIdx := 0
	if idx, err := parsed.TimestampIdxes(); err == nil {
		timestampIdx = idx[0]
	}
	codeIdx := 0
	if idx, err := parsed.InvitationCodeIdxes(opts.IgnoreBodyHashCheck); err == nil {
		codeIdx = idx[0]
	}
	commandIdx := 0
	if idx, err := parsed.CommandIdxes(opts.IgnoreBodyHashCheck); err == nil {
		commandIdx = idx[0]
	}

	out := map[string]any{
		"padded_header":     bytesToInts(input.headerPadded),
		"public_key":        input.pubkey,
		"signature":         input.signature,
		"padded_header_len": input.headerLen,
		"account_code":      codec.FieldToHex(&accountCode.Elem),
		"from_addr_idx":     fromAddrIdx[0],
		"domain_idx":        domainIdx[0],
	}

	if input.hasBody {
		// Soft-break cleanup shifts body offsets, so the code and
		// command indices are re-derived by a byte search against the
		// cleaned body the circuit actually scans.
		cleanedBody := email.RemoveQuotedPrintableSoftBreaks(input.bodyPadded)
		code, _ := parsed.InvitationCode(opts.IgnoreBodyHashCheck)
		command, _ := parsed.Command(opts.IgnoreBodyHashCheck)
		codeIdx = email.FindIndexInBody(cleanedBody, code)
		commandIdx = email.FindIndexInBody(cleanedBody, command)

		out["padded_body"] = bytesToInts(input.bodyPadded)
		out["padded_body_len"] = input.bodyLen
		out["body_hash_idx"] = input.bodyHashIdx
		out["precomputed_sha"] = bytesToInts(input.precomputedSha)
		out["padded_cleaned_body"] = bytesToInts(cleanedBody)
	} else {
		subjectIdx, err := parsed.SubjectAllIdxes()
		if err != nil {
			return nil, fmt.Errorf("extract subject index: %w", err)
		}
		out["subject_idx"] = subjectIdx[0]
	}

	out["timestamp_idx"] = timestampIdx
	out["code_idx"] = codeIdx
	out["command_idx"] = commandIdx

	return json.Marshal(out)
}

// claimInput is the witness for the claim circuit: a padded address,
// the commitment randomness and the account code.
type claimInput struct {
	EmailAddr   []int  `json:"email_addr"`
	CmRand      string `json:"cm_rand"`
	AccountCode string `json:"account_code"`
}

// GenerateClaimInput serializes the witness for the claim circuit.
func GenerateClaimInput(emailAddr, emailAddrRand, accountCode string) ([]byte, error) {
	padded, err := commitment.PadEmailAddr(emailAddr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(claimInput{
		EmailAddr:   bytesToInts(padded.PaddedBytes),
		CmRand:      emailAddrRand,
		AccountCode: accountCode,
	})
}

// ComputeSignalLength returns how many 31-byte field elements a string
// signal of maxLength bytes occupies.
func ComputeSignalLength(maxLength int) int {
	n := maxLength / 31
	if maxLength%31 != 0 {
		n++
	}
	return n
}

// StringToCircomBigIntBytes packs a string into 31-byte field elements
// rendered as decimal strings, the layout circuits use for string
// signals.
func StringToCircomBigIntBytes(input string) []string {
	fields := codec.BytesToFields([]byte(input))
	out := make([]string, len(fields))
	for i := range fields {
		out[i] = fields[i].String()
	}
	return out
}

func bytesToInts(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}
