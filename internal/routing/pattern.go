package routing

import "strings"

// PathPattern matches allowlist paths with {param} segments. A parameter may be
// followed by a literal suffix, as in /contracts/{contract_id}/workflow:request
// where only whole segments are parameters.
type PathPattern struct {
	raw      string
	segments []string
}

func parsePathPattern(raw string) (PathPattern, bool) {
	if raw == "" || raw[0] != '/' || !strings.Contains(raw, "{") {
		return PathPattern{}, false
	}

	parts := splitPathSegments(raw)
	for _, s := range parts {
		if s == "" {
			return PathPattern{}, false
		}
		if strings.ContainsAny(s, "{}") && !isParamSegment(s) {
			return PathPattern{}, false
		}
	}
	return PathPattern{raw: raw, segments: parts}, true
}

func (p PathPattern) Match(path string) bool {
	if p.raw == "" {
		return false
	}
	in := splitPathSegments(path)
	if len(in) != len(p.segments) {
		return false
	}
	for i, want := range p.segments {
		got := in[i]
		if got == "" {
			return false
		}
		if !isParamSegment(want) && got != want {
			return false
		}
	}
	return true
}

func splitPathSegments(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isParamSegment(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && strings.Count(s, "{") == 1
}
