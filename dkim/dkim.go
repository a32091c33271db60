// Package dkim canonicalizes and verifies DKIM-signed emails and hands
// the circuit pipeline exactly the bytes the signer committed to: the
// canonicalized header, the canonicalized body, the raw signature and
// the signer's RSA modulus.
package dkim

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoSignature means the email carries no DKIM-Signature header.
	ErrNoSignature = errors.New("no dkim signature found")
	// ErrBodyHashMismatch means the body hash in the signature does not
	// match the canonicalized body.
	ErrBodyHashMismatch = errors.New("body hash mismatch")
	// ErrVerification means no fetched key verifies the signature.
	ErrVerification = errors.New("dkim verification failed")
	// ErrNoKey means no usable public key was found for the signing
	// domain.
	ErrNoKey = errors.New("no public key found")
)

// gappsDomain is Google Workspace's forwarding domain; emails relayed
// through it sign with a d= that does not match the from domain.
const gappsDomain = "gappssmtp.com"

// VerifiedEmail is the output of ParseAndVerify. Header and body are in
// the canonicalized form the signature covers; Signature and PublicKey
// are big-endian byte strings.
type VerifiedEmail struct {
	CanonicalizedHeader []byte
	CanonicalizedBody   []byte
	Signature           []byte
	PublicKey           []byte
}

// SignatureString returns the signature as 0x-prefixed hex.
func (v *VerifiedEmail) SignatureString() string {
	return "0x" + fmt.Sprintf("%x", v.Signature)
}

// PublicKeyString returns the RSA modulus as 0x-prefixed hex.
func (v *VerifiedEmail) PublicKeyString() string {
	return "0x" + fmt.Sprintf("%x", v.PublicKey)
}

type header struct {
	name  string
	value string // raw value, folding preserved
}

type signature struct {
	raw         header
	tags        map[string]string
	domain      string
	selector    string
	headerCanon string
	bodyCanon   string
	headers     []string
	bodyHash    []byte
	sigBytes    []byte
}

// ParseAndVerify canonicalizes the email, checks the body hash, fetches
// the signer's key through resolver and verifies the RSA signature. The
// first DKIM-Signature whose domain matches the from domain is used,
// falling back to a gappssmtp.com signature when none matches directly.
func ParseAndVerify(ctx context.Context, rawEmail []byte, resolver Resolver) (*VerifiedEmail, error) {
	normalized := normalizeCRLF(rawEmail)
	headers, body, err := splitEmail(normalized)
	if err != nil {
		return nil, err
	}

	sigs := collectSignatures(headers)
	if len(sigs) == 0 {
		return nil, ErrNoSignature
	}
	sig, err := selectSignature(headers, sigs)
	if err != nil {
		return nil, err
	}

	canonBody := canonicalizeBody(body, sig.bodyCanon)
	bodyHash := sha256.Sum256(canonBody)
	if !bytes.Equal(bodyHash[:], sig.bodyHash) {
		return nil, fmt.Errorf("%w: computed %s, signature carries %s",
			ErrBodyHashMismatch,
			base64.StdEncoding.EncodeToString(bodyHash[:]),
			base64.StdEncoding.EncodeToString(sig.bodyHash))
	}

	canonHeader := canonicalizeSignedHeaders(headers, sig)
	headerHash := sha256.Sum256(canonHeader)

	records, err := resolver.LookupTXT(ctx, sig.selector+"._domainkey."+sig.domain)
	if err != nil {
		return nil, fmt.Errorf("lookup key for %s/%s: %w", sig.domain, sig.selector, err)
	}
	keys := parseKeyRecords(records)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: domain %s selector %s", ErrNoKey, sig.domain, sig.selector)
	}

	var verifyErrs []string
	for _, key := range keys {
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, headerHash[:], sig.sigBytes); err != nil {
			verifyErrs = append(verifyErrs, err.Error())
			continue
		}
		return &VerifiedEmail{
			CanonicalizedHeader: canonHeader,
			CanonicalizedBody:   canonBody,
			Signature:           sig.sigBytes,
			PublicKey:           key.N.Bytes(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrVerification, strings.Join(verifyErrs, "; "))
}

func normalizeCRLF(raw []byte) []byte {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(normalized, []byte("\n"), []byte("\r\n"))
}

// splitEmail separates the header block from the body and parses the
// headers with their folding intact.
func splitEmail(email []byte) ([]header, []byte, error) {
	var headerBlock, body []byte
	if idx := bytes.Index(email, []byte("\r\n\r\n")); idx >= 0 {
		headerBlock = email[:idx+2]
		body = email[idx+4:]
	} else {
		headerBlock = email
	}

	var headers []header
	lines := strings.Split(strings.TrimSuffix(string(headerBlock), "\r\n"), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(headers) == 0 {
				return nil, nil, errors.New("email starts with a folded header line")
			}
			headers[len(headers)-1].value += "\r\n" + line
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, nil, fmt.Errorf("malformed header line %q", line)
		}
		headers = append(headers, header{name: line[:colon], value: line[colon+1:]})
	}
	return headers, body, nil
}

var dkimTagRe = regexp.MustCompile(`([a-z]+)[ \t]*=[ \t]*([^;]*)`)

func collectSignatures(headers []header) []*signature {
	var sigs []*signature
	for _, h := range headers {
		if !strings.EqualFold(h.name, "DKIM-Signature") {
			continue
		}
		unfolded := strings.NewReplacer("\r\n", "", "\t", " ").Replace(h.value)
		tags := make(map[string]string)
		for _, m := range dkimTagRe.FindAllStringSubmatch(unfolded, -1) {
			tags[m[1]] = strings.TrimSpace(m[2])
		}
		sig := &signature{raw: h, tags: tags}
		sig.domain = tags["d"]
		sig.selector = tags["s"]
		canon := tags["c"]
		if canon == "" {
			canon = "simple/simple"
		}
		sig.headerCanon, sig.bodyCanon, _ = strings.Cut(canon, "/")
		if sig.bodyCanon == "" {
			sig.bodyCanon = "simple"
		}
		sig.headers = strings.Split(tags["h"], ":")
		bh, err := base64.StdEncoding.DecodeString(removeWhitespace(tags["bh"]))
		if err != nil {
			continue
		}
		sig.bodyHash = bh
		b, err := base64.StdEncoding.DecodeString(removeWhitespace(tags["b"]))
		if err != nil {
			continue
		}
		sig.sigBytes = b
		if sig.domain == "" || sig.selector == "" || len(sig.headers) == 0 {
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

var fromDomainRe = regexp.MustCompile(`@([^>\s]+)`)

// selectSignature matches a signature to the sender: exact domain,
// subdomain, then the gappssmtp fallback.
func selectSignature(headers []header, sigs []*signature) (*signature, error) {
	var fromDomain string
	for _, h := range headers {
		if strings.EqualFold(h.name, "From") {
			if m := fromDomainRe.FindStringSubmatch(h.value); m != nil {
				fromDomain = strings.TrimRight(m[1], ">")
			}
			break
		}
	}
	if fromDomain == "" {
		return nil, errors.New("could not extract domain from the from header")
	}

	for _, sig := range sigs {
		if sig.domain == fromDomain || strings.HasSuffix(sig.domain, "."+fromDomain) {
			return sig, nil
		}
	}
	for _, sig := range sigs {
		if strings.Contains(sig.domain, gappsDomain) {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("%w: no signature matches sender domain %s", ErrNoSignature, fromDomain)
}

var wsRunRe = regexp.MustCompile(`[ \t]+`)

func canonicalizeBody(body []byte, alg string) []byte {
	if alg == "relaxed" {
		lines := strings.Split(string(body), "\r\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight(wsRunRe.ReplaceAllString(line, " "), " ")
		}
		for len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		if len(lines) == 0 {
			return []byte{}
		}
		return []byte(strings.Join(lines, "\r\n") + "\r\n")
	}

	// simple: strip trailing empty lines; an empty body becomes CRLF.
	out := body
	for bytes.HasSuffix(out, []byte("\r\n\r\n")) {
		out = out[:len(out)-2]
	}
	if len(out) == 0 {
		return []byte("\r\n")
	}
	if !bytes.HasSuffix(out, []byte("\r\n")) {
		out = append(append([]byte{}, out...), '\r', '\n')
	}
	return out
}

func canonicalizeHeader(h header, alg string) string {
	if alg == "relaxed" {
		value := strings.NewReplacer("\r\n", "").Replace(h.value)
		value = strings.TrimSpace(wsRunRe.ReplaceAllString(value, " "))
		return strings.ToLower(h.name) + ":" + value
	}
	return h.name + ":" + h.value
}

// The b= tag is preceded by a separator, which keeps the pattern from
// firing on base64 runs that happen to contain "b=".
var bTagRe = regexp.MustCompile(`([;:][ \t]*)b[ \t]*=[^;]*`)

// canonicalizeSignedHeaders reproduces the exact byte string the signer
// hashed: each signed header bottom-up per h=, each followed by CRLF,
// then the DKIM-Signature header itself with the b= value emptied and no
// trailing CRLF.
func canonicalizeSignedHeaders(headers []header, sig *signature) []byte {
	used := make([]bool, len(headers))
	var out bytes.Buffer
	for _, name := range sig.headers {
		name = strings.TrimSpace(name)
		for i := len(headers) - 1; i >= 0; i-- {
			if used[i] || !strings.EqualFold(headers[i].name, name) {
				continue
			}
			used[i] = true
			out.WriteString(canonicalizeHeader(headers[i], sig.headerCanon))
			out.WriteString("\r\n")
			break
		}
	}
	sigHeader := canonicalizeHeader(sig.raw, sig.headerCanon)
	sigHeader = bTagRe.ReplaceAllString(sigHeader, "${1}b=")
	out.WriteString(strings.TrimRight(sigHeader, " \t"))
	return out.Bytes()
}

// parseKeyRecords extracts every p= value from TXT records and parses
// the usable RSA keys, accepting both PKIX and PKCS#1 encodings.
func parseKeyRecords(records []string) []*rsa.PublicKey {
	var keys []*rsa.PublicKey
	for _, record := range records {
		for _, part := range strings.Split(record, ";") {
			part = strings.TrimSpace(part)
			if !strings.HasPrefix(part, "p=") {
				continue
			}
			der, err := base64.StdEncoding.DecodeString(removeWhitespace(part[2:]))
			if err != nil {
				continue
			}
			if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
				if rsaKey, ok := pub.(*rsa.PublicKey); ok {
					keys = append(keys, rsaKey)
				}
				continue
			}
			if rsaKey, err := x509.ParsePKCS1PublicKey(der); err == nil {
				keys = append(keys, rsaKey)
			}
		}
	}
	return keys
}

func removeWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
}
