// Package payload provides addressing and normalization for JSON-compatible
// payloads.
package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned by ParsePath for malformed path expressions.
var ErrInvalidPath = errors.New("invalid path")

// Segment is one step of a Path. Bracketed numeric segments are indexes;
// every segment also keeps its raw key so it can address a map.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// position returns the slice index addressed by s.
func (s Segment) position() (int, bool) {
	if s.IsIndex {
		return s.Index, true
	}
	if s.Key == "" {
		return 0, false
	}
	for _, r := range s.Key {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s.Key)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Path addresses a value nested inside maps and slices. The empty path
// addresses the root.
type Path []Segment

// String renders p in dotted/bracket form.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch {
		case seg.IsIndex:
			fmt.Fprintf(&b, "[%d]", seg.Index)
		case needsQuoting(seg.Key):
			fmt.Fprintf(&b, "[%q]", seg.Key)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

func needsQuoting(key string) bool {
	return key == "" || strings.ContainsAny(key, ".[]\"'")
}

// ParsePath parses expressions such as "items.0.amount", "items[0].amount"
// and `meta["content.type"]`.
func ParsePath(s string) (Path, error) {
	p := Path{}
	if s == "" {
		return p, nil
	}

	expectSegment := true
	for i := 0; i < len(s); {
		switch s[i] {
		case '.':
			if expectSegment {
				return nil, fmt.Errorf("%w: empty segment at offset %d in %q", ErrInvalidPath, i, s)
			}
			expectSegment = true
			i++
		case '[':
			seg, next, err := parseBracket(s, i)
			if err != nil {
				return nil, err
			}
			p = append(p, seg)
			i = next
			expectSegment = false
		case ']':
			return nil, fmt.Errorf("%w: unexpected ']' at offset %d in %q", ErrInvalidPath, i, s)
		default:
			if !expectSegment {
				return nil, fmt.Errorf("%w: missing '.' at offset %d in %q", ErrInvalidPath, i, s)
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' && s[j] != ']' {
				j++
			}
			p = append(p, Segment{Key: s[i:j]})
			i = j
			expectSegment = false
		}
	}
	if expectSegment {
		return nil, fmt.Errorf("%w: trailing '.' in %q", ErrInvalidPath, s)
	}
	return p, nil
}

// parseBracket parses the bracket starting at s[start] and returns the
// offset just past the closing ']'.
func parseBracket(s string, start int) (Segment, int, error) {
	i := start + 1
	if i < len(s) && (s[i] == '"' || s[i] == '\'') {
		quote := s[i]
		end := strings.IndexByte(s[i+1:], quote)
		if end < 0 {
			return Segment{}, 0, fmt.Errorf("%w: unterminated quote at offset %d in %q", ErrInvalidPath, i, s)
		}
		key := s[i+1 : i+1+end]
		closeAt := i + 1 + end + 1
		if closeAt >= len(s) || s[closeAt] != ']' {
			return Segment{}, 0, fmt.Errorf("%w: expected ']' at offset %d in %q", ErrInvalidPath, closeAt, s)
		}
		return Segment{Key: key}, closeAt + 1, nil
	}

	end := strings.IndexByte(s[i:], ']')
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("%w: unclosed '[' at offset %d in %q", ErrInvalidPath, start, s)
	}
	raw := s[i : i+end]
	if raw == "" {
		return Segment{}, 0, fmt.Errorf("%w: empty brackets at offset %d in %q", ErrInvalidPath, start, s)
	}
	seg := Segment{Key: raw}
	if n, ok := seg.position(); ok {
		seg.Index = n
		seg.IsIndex = true
	}
	return seg, i + end + 1, nil
}

// Lookup walks p from root. It reports false when any segment is missing or
// addresses into a scalar.
func Lookup(root any, p Path) (any, bool) {
	cur := root
	for _, seg := range p {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg.Key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, ok := seg.position()
			if !ok || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
