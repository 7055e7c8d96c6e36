package utils

import "strings"

// NormalizeURI trims surrounding whitespace, drops any query string or
// fragment, forces a single leading '/' and removes the trailing slash
// (the root "/" stays as-is).
func NormalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if i := strings.IndexAny(uri, "?#"); i != -1 {
		uri = uri[:i]
	}
	if uri == "" {
		return "/"
	}
	if uri[0] != '/' {
		uri = "/" + uri
	}
	for len(uri) > 1 && uri[len(uri)-1] == '/' {
		uri = uri[:len(uri)-1]
	}
	return uri
}

// SplitSegments splits a URI or pattern on '/' discarding empty segments.
func SplitSegments(uri string) []string {
	parts := strings.Split(uri, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LastSegment returns the final path segment with parameter braces and
// wildcard markers stripped, used to derive display names from URIs.
func LastSegment(uri string) string {
	segs := SplitSegments(uri)
	if len(segs) == 0 {
		return ""
	}
	last := segs[len(segs)-1]
	last = strings.TrimPrefix(last, "{")
	last = strings.TrimSuffix(last, "}")
	if last == "*" {
		// wildcard leaves carry their parent's name
		if len(segs) > 1 {
			return segs[len(segs)-2]
		}
		return "root"
	}
	return last
}

// SegmentsEqualFold reports whether two path segments are equal ignoring
// ASCII case. URI path matching is case-insensitive throughout.
func SegmentsEqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
