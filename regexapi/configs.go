package regexapi

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed regexes/*.json
var regexFS embed.FS

func loadConfig(name string) DecomposedRegexConfig {
	data, err := regexFS.ReadFile("regexes/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("regexapi: missing embedded config %s: %v", name, err))
	}
	var config DecomposedRegexConfig
	if err := json.Unmarshal(data, &config); err != nil {
		panic(fmt.Sprintf("regexapi: malformed embedded config %s: %v", name, err))
	}
	return config
}

// The structural patterns are fixed at build time; a failure to load one
// is a packaging defect, hence the panics above.
var (
	fromAddrConfig                 = loadConfig("from_addr")
	fromAllConfig                  = loadConfig("from_all")
	toAddrConfig                   = loadConfig("to_addr")
	emailAddrConfig                = loadConfig("email_addr")
	emailAddrWithNameConfig        = loadConfig("email_addr_with_name")
	emailDomainConfig              = loadConfig("email_domain")
	subjectAllConfig               = loadConfig("subject_all")
	timestampConfig                = loadConfig("timestamp")
	bodyHashConfig                 = loadConfig("body_hash")
	messageIDConfig                = loadConfig("message_id")
	invitationCodeConfig           = loadConfig("invitation_code")
	invitationCodeWithPrefixConfig = loadConfig("invitation_code_with_prefix")
	commandConfig                  = loadConfig("command")
)

// ExtractFromAddrIdxes returns the span of the address inside the from
// header line.
func ExtractFromAddrIdxes(input string) ([2]int, error) {
	return firstIdx(input, fromAddrConfig)
}

// ExtractFromAllIdxes returns the span of the whole from header value.
func ExtractFromAllIdxes(input string) ([2]int, error) {
	return firstIdx(input, fromAllConfig)
}

// ExtractToAddrIdxes returns the span of the address inside the to
// header line.
func ExtractToAddrIdxes(input string) ([2]int, error) {
	return firstIdx(input, toAddrConfig)
}

// ExtractEmailAddrIdxes returns the span of the first bare email address.
func ExtractEmailAddrIdxes(input string) ([2]int, error) {
	return firstIdx(input, emailAddrConfig)
}

// ExtractEmailAddrWithNameIdxes returns the span of an angle-bracketed
// email address.
func ExtractEmailAddrWithNameIdxes(input string) ([2]int, error) {
	return firstIdx(input, emailAddrWithNameConfig)
}

// ExtractEmailDomainIdxes returns the span of the domain part of an
// email address.
func ExtractEmailDomainIdxes(input string) ([2]int, error) {
	return firstIdx(input, emailDomainConfig)
}

// ExtractSubjectAllIdxes returns the span of the whole subject value.
func ExtractSubjectAllIdxes(input string) ([2]int, error) {
	return firstIdx(input, subjectAllConfig)
}

// ExtractTimestampIdxes returns the span of the t= timestamp inside the
// dkim-signature header.
func ExtractTimestampIdxes(input string) ([2]int, error) {
	return firstIdx(input, timestampConfig)
}

// ExtractBodyHashIdxes returns the span of the bh= value inside the
// dkim-signature header.
func ExtractBodyHashIdxes(input string) ([2]int, error) {
	return firstIdx(input, bodyHashConfig)
}

// ExtractMessageIDIdxes returns the span of the message-id value.
func ExtractMessageIDIdxes(input string) ([2]int, error) {
	return firstIdx(input, messageIDConfig)
}

// ExtractInvitationCodeIdxes returns the span of the hex invitation code
// following its marker.
func ExtractInvitationCodeIdxes(input string) ([2]int, error) {
	return firstIdx(input, invitationCodeConfig)
}

// ExtractInvitationCodeWithPrefixIdxes returns the span of the
// invitation code including its marker.
func ExtractInvitationCodeWithPrefixIdxes(input string) ([2]int, error) {
	return firstIdx(input, invitationCodeWithPrefixConfig)
}

// ExtractCommandIdxes returns the span of the command text inside the
// zkemail div of an HTML body.
func ExtractCommandIdxes(input string) ([2]int, error) {
	return firstIdx(input, commandConfig)
}
