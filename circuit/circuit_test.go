package circuit

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/mynextid/email-zk/codec"
	"github.com/mynextid/email-zk/commitment"
	"github.com/mynextid/email-zk/email"
)

const circuitTestHeader = "from:Alice Smith <alice.smith@gmail.com>\r\n" +
	"subject:Hello World\r\n" +
	"dkim-signature:v=1; a=rsa-sha256; c=relaxed/relaxed; d=gmail.com; s=20230601; t=1694989812; bh=2JsdK4BMzzt9w4Zlz2TdyVCFc+l7vNyT5aAgGDYf7fM=; b=\r\n"

const circuitTestBody = "Hi! This is a test.\r\n\r\n" +
	"Your code 01eb9b20 awaits.\r\n" +
	"<div id=3D\"zkemail\">Send 1 ETH to bob@example.com</div>\r\n"

func testParsedEmail() *email.ParsedEmail {
	signature := make([]byte, 256)
	publicKey := make([]byte, 256)
	for i := range signature {
		signature[i] = byte(i + 1)
		publicKey[i] = byte(255 - i)
	}
	return &email.ParsedEmail{
		CanonicalizedHeader: circuitTestHeader,
		CanonicalizedBody:   circuitTestBody,
		Signature:           signature,
		PublicKey:           publicKey,
	}
}

func testAccountCode(t *testing.T) *commitment.AccountCode {
	t.Helper()
	code, err := commitment.AccountCodeFromHex("0x01eb9b204cc24c3e8c4d1c7d7d4c3b2a01eb9b204cc24c3e8c4d1c7d7d4c3b2a")
	if err != nil {
		t.Fatalf("AccountCodeFromHex: %v", err)
	}
	return &code
}

func asInt(t *testing.T, v any) int {
	t.Helper()
	f, ok := v.(float64)
	if !ok {
		t.Fatalf("value %v (%T) is not a number", v, v)
	}
	return int(f)
}

func TestGenerateEmailCircuitInputWithBody(t *testing.T) {
	parsed := testParsedEmail()
	code := testAccountCode(t)

	data, err := GenerateEmailCircuitInputFromParsed(parsed, code, nil)
	if err != nil {
		t.Fatalf("GenerateEmailCircuitInputFromParsed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := len(out["padded_header"].([]any)); got != MaxHeaderPaddedBytes {
		t.Errorf("padded_header length = %d, want %d", got, MaxHeaderPaddedBytes)
	}
	wantHeaderLen := ((len(circuitTestHeader) + 9 + 63) / 64) * 64
	if got := asInt(t, out["padded_header_len"]); got != wantHeaderLen {
		t.Errorf("padded_header_len = %d, want %d", got, wantHeaderLen)
	}
	if got := len(out["padded_body"].([]any)); got != MaxBodyPaddedBytes {
		t.Errorf("padded_body length = %d, want %d", got, MaxBodyPaddedBytes)
	}
	wantBodyLen := ((len(circuitTestBody) + 9 + 63) / 64) * 64
	if got := asInt(t, out["padded_body_len"]); got != wantBodyLen {
		t.Errorf("padded_body_len = %d, want %d", got, wantBodyLen)
	}
	if got := len(out["precomputed_sha"].([]any)); got != 32 {
		t.Errorf("precomputed_sha length = %d, want 32", got)
	}
	if got := len(out["padded_cleaned_body"].([]any)); got != MaxBodyPaddedBytes {
		t.Errorf("padded_cleaned_body length = %d, want %d", got, MaxBodyPaddedBytes)
	}
	if got := len(out["public_key"].([]any)); got != codec.CircomBigintK {
		t.Errorf("public_key chunks = %d, want %d", got, codec.CircomBigintK)
	}
	if got := len(out["signature"].([]any)); got != codec.CircomBigintK {
		t.Errorf("signature chunks = %d, want %d", got, codec.CircomBigintK)
	}

	if got := asInt(t, out["from_addr_idx"]); got != strings.Index(circuitTestHeader, "alice.smith@gmail.com") {
		t.Errorf("from_addr_idx = %d", got)
	}
	// Domain index is local to the from address.
	if got := asInt(t, out["domain_idx"]); got != len("alice.smith@") {
		t.Errorf("domain_idx = %d", got)
	}
	if got := asInt(t, out["timestamp_idx"]); got != strings.Index(circuitTestHeader, "1694989812") {
		t.Errorf("timestamp_idx = %d", got)
	}
	if got := asInt(t, out["body_hash_idx"]); got != strings.Index(circuitTestHeader, "2JsdK4") {
		t.Errorf("body_hash_idx = %d", got)
	}
	// No soft breaks in the body, so the byte search lands on the raw
	// offsets.
	if got := asInt(t, out["code_idx"]); got != strings.Index(circuitTestBody, "01eb9b20") {
		t.Errorf("code_idx = %d", got)
	}
	if got := asInt(t, out["command_idx"]); got != strings.Index(circuitTestBody, "Send 1 ETH") {
		t.Errorf("command_idx = %d", got)
	}

	if _, ok := out["subject_idx"]; ok {
		t.Error("subject_idx must be absent when the body is present")
	}
	if got := out["account_code"].(string); got != codec.FieldToHex(&code.Elem) {
		t.Errorf("account_code = %q", got)
	}
}

func TestGenerateEmailCircuitInputIgnoreBodyHash(t *testing.T) {
	parsed := testParsedEmail()
	code := testAccountCode(t)

	data, err := GenerateEmailCircuitInputFromParsed(parsed, code, &EmailCircuitParams{IgnoreBodyHashCheck: true})
	if err != nil {
		t.Fatalf("GenerateEmailCircuitInputFromParsed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"padded_body", "padded_body_len", "body_hash_idx", "precomputed_sha", "padded_cleaned_body"} {
		if _, ok := out[key]; ok {
			t.Errorf("%s must be absent when the body hash check is skipped", key)
		}
	}
	if got := asInt(t, out["subject_idx"]); got != strings.Index(circuitTestHeader, "Hello World") {
		t.Errorf("subject_idx = %d", got)
	}
	// The header carries no invitation code or command div.
	if got := asInt(t, out["code_idx"]); got != 0 {
		t.Errorf("code_idx = %d, want 0", got)
	}
	if got := asInt(t, out["command_idx"]); got != 0 {
		t.Errorf("command_idx = %d, want 0", got)
	}
}

func TestGenerateClaimInput(t *testing.T) {
	data, err := GenerateClaimInput("alice@example.com", "0x2a", "0x1f")
	if err != nil {
		t.Fatalf("GenerateClaimInput: %v", err)
	}
	var out struct {
		EmailAddr   []int  `json:"email_addr"`
		CmRand      string `json:"cm_rand"`
		AccountCode string `json:"account_code"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.EmailAddr) != commitment.MaxEmailAddrBytes {
		t.Fatalf("email_addr length = %d, want %d", len(out.EmailAddr), commitment.MaxEmailAddrBytes)
	}
	for i, b := range []byte("alice@example.com") {
		if out.EmailAddr[i] != int(b) {
			t.Fatalf("email_addr[%d] = %d, want %d", i, out.EmailAddr[i], b)
		}
	}
	if out.EmailAddr[len("alice@example.com")] != 0 {
		t.Error("email_addr must be zero padded")
	}
	if out.CmRand != "0x2a" || out.AccountCode != "0x1f" {
		t.Errorf("cm_rand = %q, account_code = %q", out.CmRand, out.AccountCode)
	}
}

func TestComputeSignalLength(t *testing.T) {
	cases := []struct{ maxLength, want int }{
		{0, 0},
		{31, 1},
		{32, 2},
		{62, 2},
		{64, 3},
	}
	for _, tc := range cases {
		if got := ComputeSignalLength(tc.maxLength); got != tc.want {
			t.Errorf("ComputeSignalLength(%d) = %d, want %d", tc.maxLength, got, tc.want)
		}
	}
}

func TestStringToCircomBigIntBytes(t *testing.T) {
	value := StringToCircomBigIntBytes("testerman@zkemail.com")
	if len(value) != 1 {
		t.Fatalf("chunks = %d, want 1", len(value))
	}
	// 31-byte chunks are little-endian.
	raw := []byte("testerman@zkemail.com")
	reversed := make([]byte, len(raw))
	for i, b := range raw {
		reversed[len(raw)-1-i] = b
	}
	want := new(big.Int).SetBytes(reversed).String()
	if value[0] != want {
		t.Errorf("chunk = %s, want %s", value[0], want)
	}

	if got := StringToCircomBigIntBytes(""); len(got) != 0 {
		t.Errorf("empty string chunks = %d, want 0", len(got))
	}
}
