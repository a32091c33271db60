// Package email exposes a DKIM-verified email's canonicalized parts and
// typed accessors for the structural substrings the circuits constrain:
// sender, domain, subject, timestamp, body hash, invitation code and
// command.
package email

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mynextid/email-zk/dkim"
	"github.com/mynextid/email-zk/regexapi"
)

// ParsedEmail holds the canonicalized parts of a verified email along
// with its signature and public key, both big-endian.
type ParsedEmail struct {
	CanonicalizedHeader string
	CanonicalizedBody   string
	Signature           []byte
	PublicKey           []byte
}

// Parse verifies the raw email through the DKIM layer and wraps the
// result.
func Parse(ctx context.Context, rawEmail []byte, resolver dkim.Resolver) (*ParsedEmail, error) {
	verified, err := dkim.ParseAndVerify(ctx, rawEmail, resolver)
	if err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}
	return &ParsedEmail{
		CanonicalizedHeader: string(verified.CanonicalizedHeader),
		CanonicalizedBody:   string(verified.CanonicalizedBody),
		Signature:           verified.Signature,
		PublicKey:           verified.PublicKey,
	}, nil
}

// SignatureString returns the signature as 0x-prefixed hex.
func (p *ParsedEmail) SignatureString() string {
	return "0x" + fmt.Sprintf("%x", p.Signature)
}

// PublicKeyString returns the RSA modulus as 0x-prefixed hex.
func (p *ParsedEmail) PublicKeyString() string {
	return "0x" + fmt.Sprintf("%x", p.PublicKey)
}

// FromAddrIdxes returns the span of the from address in the header.
func (p *ParsedEmail) FromAddrIdxes() ([2]int, error) {
	return regexapi.ExtractFromAddrIdxes(p.CanonicalizedHeader)
}

// FromAddr returns the sender's address.
func (p *ParsedEmail) FromAddr() (string, error) {
	idx, err := p.FromAddrIdxes()
	if err != nil {
		return "", err
	}
	return p.CanonicalizedHeader[idx[0]:idx[1]], nil
}

// ToAddr returns the recipient's address.
func (p *ParsedEmail) ToAddr() (string, error) {
	idx, err := regexapi.ExtractToAddrIdxes(p.CanonicalizedHeader)
	if err != nil {
		return "", err
	}
	return p.CanonicalizedHeader[idx[0]:idx[1]], nil
}

// EmailDomainIdxes returns the span of the domain within the from
// address, local to that address.
func (p *ParsedEmail) EmailDomainIdxes() ([2]int, error) {
	fromAddr, err := p.FromAddr()
	if err != nil {
		return [2]int{}, err
	}
	return regexapi.ExtractEmailDomainIdxes(fromAddr)
}

// EmailDomain returns the domain of the sender's address.
func (p *ParsedEmail) EmailDomain() (string, error) {
	fromAddr, err := p.FromAddr()
	if err != nil {
		return "", err
	}
	idx, err := regexapi.ExtractEmailDomainIdxes(fromAddr)
	if err != nil {
		return "", err
	}
	return fromAddr[idx[0]:idx[1]], nil
}

// SubjectAllIdxes returns the span of the whole subject value.
func (p *ParsedEmail) SubjectAllIdxes() ([2]int, error) {
	return regexapi.ExtractSubjectAllIdxes(p.CanonicalizedHeader)
}

// SubjectAll returns the whole subject value.
func (p *ParsedEmail) SubjectAll() (string, error) {
	idx, err := p.SubjectAllIdxes()
	if err != nil {
		return "", err
	}
	return p.CanonicalizedHeader[idx[0]:idx[1]], nil
}

// BodyHashIdxes returns the span of the bh= value in the header.
func (p *ParsedEmail) BodyHashIdxes() ([2]int, error) {
	return regexapi.ExtractBodyHashIdxes(p.CanonicalizedHeader)
}

// TimestampIdxes returns the span of the dkim t= timestamp.
func (p *ParsedEmail) TimestampIdxes() ([2]int, error) {
	return regexapi.ExtractTimestampIdxes(p.CanonicalizedHeader)
}

// Timestamp returns the dkim t= timestamp as seconds.
func (p *ParsedEmail) Timestamp() (uint64, error) {
	idx, err := p.TimestampIdxes()
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseUint(p.CanonicalizedHeader[idx[0]:idx[1]], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp: %w", err)
	}
	return ts, nil
}

// MessageID returns the message-id header value.
func (p *ParsedEmail) MessageID() (string, error) {
	idx, err := regexapi.ExtractMessageIDIdxes(p.CanonicalizedHeader)
	if err != nil {
		return "", err
	}
	return p.CanonicalizedHeader[idx[0]:idx[1]], nil
}

// EmailAddrInSubjectIdxes returns the span of an email address inside
// the subject, local to the subject string.
func (p *ParsedEmail) EmailAddrInSubjectIdxes() ([2]int, error) {
	subject, err := p.SubjectAll()
	if err != nil {
		return [2]int{}, err
	}
	return regexapi.ExtractEmailAddrIdxes(subject)
}

// EmailAddrInSubject returns the email address inside the subject.
func (p *ParsedEmail) EmailAddrInSubject() (string, error) {
	subject, err := p.SubjectAll()
	if err != nil {
		return "", err
	}
	idx, err := regexapi.ExtractEmailAddrIdxes(subject)
	if err != nil {
		return "", err
	}
	return subject[idx[0]:idx[1]], nil
}

// invitationCodeSource picks where the code lives: the header carries it
// when the proof omits the body.
func (p *ParsedEmail) invitationCodeSource(ignoreBodyHashCheck bool) string {
	if ignoreBodyHashCheck {
		return p.CanonicalizedHeader
	}
	return p.CanonicalizedBody
}

// InvitationCodeIdxes returns the span of the invitation code.
func (p *ParsedEmail) InvitationCodeIdxes(ignoreBodyHashCheck bool) ([2]int, error) {
	return regexapi.ExtractInvitationCodeIdxes(p.invitationCodeSource(ignoreBodyHashCheck))
}

// InvitationCode returns the invitation code hex string.
func (p *ParsedEmail) InvitationCode(ignoreBodyHashCheck bool) (string, error) {
	source := p.invitationCodeSource(ignoreBodyHashCheck)
	idx, err := regexapi.ExtractInvitationCodeIdxes(source)
	if err != nil {
		return "", err
	}
	return source[idx[0]:idx[1]], nil
}

// CommandIdxes returns the span of the command text.
func (p *ParsedEmail) CommandIdxes(ignoreBodyHashCheck bool) ([2]int, error) {
	return regexapi.ExtractCommandIdxes(p.invitationCodeSource(ignoreBodyHashCheck))
}

// Command returns the command text. The primary path matches the raw
// canonicalized body and strips quoted-printable soft breaks from the
// match afterwards; when that misses because a soft break splits the
// pattern itself, the cleaned body is matched instead.
func (p *ParsedEmail) Command(ignoreBodyHashCheck bool) (string, error) {
	source := p.invitationCodeSource(ignoreBodyHashCheck)
	if idx, err := regexapi.ExtractCommandIdxes(source); err == nil {
		return stripSoftBreaks(source[idx[0]:idx[1]]), nil
	}
	cleaned := string(RemoveQuotedPrintableSoftBreaks([]byte(source)))
	idx, err := regexapi.ExtractCommandIdxes(cleaned)
	if err != nil {
		return "", err
	}
	return cleaned[idx[0]:idx[1]], nil
}
