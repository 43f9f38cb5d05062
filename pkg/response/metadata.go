package response

import (
	"encoding/json"
	"strings"
)

// Metadata is the structured block the model embeds in its reply inside a
// delimited tag. It never reaches the speaker. EndCall is the persona
// deciding to hang up; StateFeedback is its read on how the caller is
// doing, used for coaching artifacts.
type Metadata struct {
	Emotion       string `json:"emotion"`
	Followup      string `json:"followup"`
	EndCall       bool   `json:"end_call"`
	Objection     string `json:"objection"`
	StateFeedback string `json:"state_feedback"`
}

// ParseStatus says which path the tolerant parser took, so tests and logs
// can assert on it instead of guessing from the output.
type ParseStatus string

const (
	ParseMissing  ParseStatus = "missing"
	ParseParsed   ParseStatus = "parsed"
	ParseRepaired ParseStatus = "repaired"
	ParseFailed   ParseStatus = "failed"
)

const (
	metaOpen  = "<meta>"
	metaClose = "</meta>"
)

// ParseMetadata extracts and strips the metadata tag from a raw model
// reply. A missing closing delimiter truncates the tag at end of text; a
// malformed JSON body gets one brace-balancing repair attempt. The spoken
// text is always usable, whatever the status.
func ParseMetadata(raw string) (spoken string, md Metadata, status ParseStatus) {
	start := strings.Index(raw, metaOpen)
	if start < 0 {
		return strings.TrimSpace(raw), Metadata{}, ParseMissing
	}

	body := raw[start+len(metaOpen):]
	spoken = raw[:start]
	truncated := false
	if end := strings.Index(body, metaClose); end >= 0 {
		spoken += body[end+len(metaClose):]
		body = body[:end]
	} else {
		truncated = true
	}
	spoken = strings.TrimSpace(spoken)
	body = strings.TrimSpace(body)

	if err := json.Unmarshal([]byte(body), &md); err == nil {
		if truncated {
			return spoken, md, ParseRepaired
		}
		return spoken, md, ParseParsed
	}

	if err := json.Unmarshal([]byte(repairJSON(body)), &md); err == nil {
		return spoken, md, ParseRepaired
	}
	return spoken, Metadata{}, ParseFailed
}

// repairJSON balances braces and closes a dangling string so a truncated
// object has a chance of parsing. Best effort only.
func repairJSON(body string) string {
	depth := 0
	inString := false
	escaped := false
	for _, r := range body {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
			}
		}
	}
	repaired := body
	if inString {
		repaired += `"`
	}
	repaired = strings.TrimRight(repaired, ", \t\n")
	for i := 0; i < depth; i++ {
		repaired += "}"
	}
	return repaired
}
