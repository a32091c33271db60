// Package regexapi locates structural substrings of canonicalized email
// text using decomposed regex configs, the same declarative shape the
// proving circuits are compiled from. Each config is an ordered list of
// parts; the whole sequence must match once, and the byte spans of the
// public parts are returned.
package regexapi

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoMatch means the decomposed regex as a whole has no match in the
// input.
var ErrNoMatch = errors.New("substring of the entire regex not found")

// RegexPart is one element of a decomposed regex. Only public parts
// contribute spans to the extraction result.
type RegexPart struct {
	IsPublic bool   `json:"is_public"`
	RegexDef string `json:"regex_def"`
}

// DecomposedRegexConfig is a decomposed regex: the concatenation of all
// part definitions forms the complete pattern.
type DecomposedRegexConfig struct {
	Parts []RegexPart `json:"parts"`
}

// ExtractSubstrIdxes returns the (start, end) byte spans of the public
// parts of config at the first match of the whole pattern in input.
// Spans are relative to input; composing extractions over a sub-slice
// yields spans local to that slice.
func ExtractSubstrIdxes(input string, config DecomposedRegexConfig) ([][2]int, error) {
	var whole strings.Builder
	for _, part := range config.Parts {
		whole.WriteString(part.RegexDef)
	}
	entire, err := regexp.Compile(whole.String())
	if err != nil {
		return nil, fmt.Errorf("compile decomposed regex %q: %w", whole.String(), err)
	}
	loc := entire.FindStringIndex(input)
	if loc == nil {
		return nil, fmt.Errorf("%w: regex %q", ErrNoMatch, whole.String())
	}

	// Re-match part by part from the start of the whole match to
	// attribute a span to each part. A part that cannot advance the
	// cursor contributes an empty span.
	start := loc[0]
	var idxes [][2]int
	for _, part := range config.Parts {
		partRe, err := regexp.Compile("^(?:" + part.RegexDef + ")")
		if err != nil {
			return nil, fmt.Errorf("compile regex part %q: %w", part.RegexDef, err)
		}
		end := start
		if m := partRe.FindStringIndex(input[start:]); m != nil {
			end = start + m[1]
		}
		if part.IsPublic {
			idxes = append(idxes, [2]int{start, end})
		}
		start = end
	}
	return idxes, nil
}

// EntireMatchIdxes returns the span of the first match of the whole
// concatenated pattern, private parts included.
func EntireMatchIdxes(input string, config DecomposedRegexConfig) ([2]int, error) {
	var whole strings.Builder
	for _, part := range config.Parts {
		whole.WriteString(part.RegexDef)
	}
	entire, err := regexp.Compile(whole.String())
	if err != nil {
		return [2]int{}, fmt.Errorf("compile decomposed regex %q: %w", whole.String(), err)
	}
	loc := entire.FindStringIndex(input)
	if loc == nil {
		return [2]int{}, fmt.Errorf("%w: regex %q", ErrNoMatch, whole.String())
	}
	return [2]int{loc[0], loc[1]}, nil
}

// firstIdx runs ExtractSubstrIdxes and returns the first public span.
func firstIdx(input string, config DecomposedRegexConfig) ([2]int, error) {
	idxes, err := ExtractSubstrIdxes(input, config)
	if err != nil {
		return [2]int{}, err
	}
	if len(idxes) == 0 {
		return [2]int{}, fmt.Errorf("%w: config has no public part", ErrNoMatch)
	}
	return idxes[0], nil
}

// PadString zero-pads a string to paddedBytesSize bytes, the layout the
// circuits expect for fixed-capacity string inputs.
func PadString(s string, paddedBytesSize int) []byte {
	padded := make([]byte, paddedBytesSize)
	copy(padded, s)
	return padded
}
