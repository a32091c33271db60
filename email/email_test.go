package email

import (
	"bytes"
	"testing"
)

const testHeader = "to:Bob Jones <bob.jones@proton.me>\r\n" +
	"from:Alice Smith <alice.smith@gmail.com>\r\n" +
	"subject:Send to recipient@example.com now\r\n" +
	"message-id:<CAJ7Y6jmZEp=KSj12@mail.gmail.com>\r\n" +
	"dkim-signature:v=1; a=rsa-sha256; c=relaxed/relaxed; d=gmail.com; s=20230601; t=1694989812; x=1695594612; h=to:subject:message-id:date:from:mime-version:from:to:cc:subject; bh=aeLbTnlUQQv2UFEWKHeiL5Q0NjOwj4ktNSInk8rN/P0=; b=\r\n"

const testBody = "Hello,\r\n\r\n" +
	"Your code 01eb9b204cc24c3e8c4d1c7d7d4c3b2a is ready.\r\n\r\n" +
	"<div id=3D\"zkemail\">Send 1 ETH to bob@example.com</div>\r\n"

func testEmail() *ParsedEmail {
	return &ParsedEmail{
		CanonicalizedHeader: testHeader,
		CanonicalizedBody:   testBody,
		Signature:           []byte{0x01, 0x02},
		PublicKey:           []byte{0xab, 0xcd},
	}
}

func TestHeaderAccessors(t *testing.T) {
	p := testEmail()

	from, err := p.FromAddr()
	if err != nil {
		t.Fatalf("FromAddr: %v", err)
	}
	if from != "alice.smith@gmail.com" {
		t.Errorf("from = %q", from)
	}

	to, err := p.ToAddr()
	if err != nil {
		t.Fatalf("ToAddr: %v", err)
	}
	if to != "bob.jones@proton.me" {
		t.Errorf("to = %q", to)
	}

	subject, err := p.SubjectAll()
	if err != nil {
		t.Fatalf("SubjectAll: %v", err)
	}
	if subject != "Send to recipient@example.com now" {
		t.Errorf("subject = %q", subject)
	}

	msgID, err := p.MessageID()
	if err != nil {
		t.Fatalf("MessageID: %v", err)
	}
	if msgID != "<CAJ7Y6jmZEp=KSj12@mail.gmail.com>" {
		t.Errorf("message id = %q", msgID)
	}

	ts, err := p.Timestamp()
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if ts != 1694989812 {
		t.Errorf("timestamp = %d", ts)
	}
}

func TestEmailDomainLocalIndices(t *testing.T) {
	p := testEmail()

	domain, err := p.EmailDomain()
	if err != nil {
		t.Fatalf("EmailDomain: %v", err)
	}
	if domain != "gmail.com" {
		t.Errorf("domain = %q", domain)
	}

	// The span is relative to the from address, not the header.
	idx, err := p.EmailDomainIdxes()
	if err != nil {
		t.Fatalf("EmailDomainIdxes: %v", err)
	}
	from, _ := p.FromAddr()
	if got := from[idx[0]:idx[1]]; got != "gmail.com" {
		t.Errorf("domain span in from addr = %q", got)
	}
}

func TestEmailAddrInSubject(t *testing.T) {
	p := testEmail()

	addr, err := p.EmailAddrInSubject()
	if err != nil {
		t.Fatalf("EmailAddrInSubject: %v", err)
	}
	if addr != "recipient@example.com" {
		t.Errorf("addr = %q", addr)
	}

	idx, err := p.EmailAddrInSubjectIdxes()
	if err != nil {
		t.Fatalf("EmailAddrInSubjectIdxes: %v", err)
	}
	subject, _ := p.SubjectAll()
	if got := subject[idx[0]:idx[1]]; got != "recipient@example.com" {
		t.Errorf("addr span in subject = %q", got)
	}
}

func TestBodyHashIdxes(t *testing.T) {
	p := testEmail()
	idx, err := p.BodyHashIdxes()
	if err != nil {
		t.Fatalf("BodyHashIdxes: %v", err)
	}
	got := p.CanonicalizedHeader[idx[0]:idx[1]]
	if got != "aeLbTnlUQQv2UFEWKHeiL5Q0NjOwj4ktNSInk8rN/P0=" {
		t.Errorf("body hash = %q", got)
	}
}

func TestInvitationCodeSources(t *testing.T) {
	p := testEmail()

	code, err := p.InvitationCode(false)
	if err != nil {
		t.Fatalf("InvitationCode(body): %v", err)
	}
	if code != "01eb9b204cc24c3e8c4d1c7d7d4c3b2a" {
		t.Errorf("code = %q", code)
	}

	// The header carries no code, so searching it must fail.
	if _, err := p.InvitationCode(true); err == nil {
		t.Error("expected no code in header")
	}

	p.CanonicalizedHeader = "subject:code deadbeef\r\n" + testHeader
	code, err = p.InvitationCode(true)
	if err != nil {
		t.Fatalf("InvitationCode(header): %v", err)
	}
	if code != "deadbeef" {
		t.Errorf("header code = %q", code)
	}
}

func TestCommand(t *testing.T) {
	p := testEmail()
	cmd, err := p.Command(false)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd != "Send 1 ETH to bob@example.com" {
		t.Errorf("command = %q", cmd)
	}
}

func TestCommandStripsSoftBreakInMatch(t *testing.T) {
	p := testEmail()
	p.CanonicalizedBody = "<div id=3D\"zkemail\">Send 1 =\r\nETH to bob@example.com</div>\r\n"
	cmd, err := p.Command(false)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd != "Send 1 ETH to bob@example.com" {
		t.Errorf("command = %q", cmd)
	}
}

func TestCommandFallsBackToCleanedBody(t *testing.T) {
	// A soft break inside the div tag breaks the raw-body match, so the
	// cleaned body is consulted.
	p := testEmail()
	p.CanonicalizedBody = "<div id=3D\"zkem=\r\nail\">Send 1 ETH</div>\r\n"
	cmd, err := p.Command(false)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd != "Send 1 ETH" {
		t.Errorf("command = %q", cmd)
	}
}

func TestRemoveQuotedPrintableSoftBreaks(t *testing.T) {
	body := []byte("hel=\r\nlo wor=\r\nld")
	cleaned := RemoveQuotedPrintableSoftBreaks(body)
	if len(cleaned) != len(body) {
		t.Fatalf("length changed: %d != %d", len(cleaned), len(body))
	}
	want := append([]byte("hello world"), make([]byte, 6)...)
	if !bytes.Equal(cleaned, want) {
		t.Errorf("cleaned = %q", cleaned)
	}

	// An equals sign not followed by CRLF survives.
	kept := RemoveQuotedPrintableSoftBreaks([]byte("a=b"))
	if !bytes.Equal(kept, []byte("a=b")) {
		t.Errorf("kept = %q", kept)
	}
}

func TestFindIndexInBody(t *testing.T) {
	body := []byte("find the needle here")
	if got := FindIndexInBody(body, "needle"); got != 9 {
		t.Errorf("index = %d", got)
	}
	if got := FindIndexInBody(body, "missing"); got != 0 {
		t.Errorf("missing pattern index = %d", got)
	}
	if got := FindIndexInBody(body, ""); got != 0 {
		t.Errorf("empty pattern index = %d", got)
	}
}
