package verdict

import "strings"

// Result is the structured compliance verdict extracted from a raw agent
// response. Compliant is nil when the first line carries neither a yes nor
// a no, which serializes as JSON null like the legacy payloads.
type Result struct {
	Compliant *bool  `json:"compliant"`
	Reason    string `json:"reason"`
	RawText   string `json:"raw_text"`
}

// Parse turns raw agent text into a Result. The convention is best-effort:
// the first line is scanned for a yes/no token and everything after the
// first newline becomes the reason. Parse never fails; any input, including
// the empty string, yields a Result with the raw text preserved verbatim.
//
// "yes" is tested before "no". A first line containing both tokens
// therefore resolves to compliant; callers that need stricter semantics
// must change this knowingly, as existing consumers depend on it.
func Parse(raw string) Result {
	firstLine, rest, _ := strings.Cut(raw, "\n")
	lowered := strings.ToLower(firstLine)

	var compliant *bool
	switch {
	case strings.Contains(lowered, "yes"):
		v := true
		compliant = &v
	case strings.Contains(lowered, "no"):
		v := false
		compliant = &v
	}

	return Result{
		Compliant: compliant,
		Reason:    strings.TrimSpace(rest),
		RawText:   raw,
	}
}
