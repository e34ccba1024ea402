// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Path resolution against the evaluation context.
 *
 * Implements the JSONPath subset rules are written in and returns every match in document
 * order, each with its normalized path and its location (the last resolved segment). Map
 * children are visited in sorted key order so results are deterministic.
 *
 * Grammar:
 *   $                 root (required prefix)
 *   .key  ['key']     child by key ("key" quoting also accepted)
 *   .*    [*]         every child of a map or list
 *   [n]   [-n]        list index, negative counts from the end
 *   ..key ..*         recursive descent
 *   [?(@.a OP lit)]   filter children; "@." may be omitted, OP in = == != > < >= <=,
 *   [?(@.a)]          existence filter
 *
 * Errors: unparsable expressions return ErrMalformedPath, over-long ones ErrPathTooDeep.
 * A well-formed path that matches nothing returns an empty slice and no error.
 */

// Match is one value found by a path.
type Match struct {
	Path     string // normalized path, e.g. $.orders[0].id
	Location string // last resolved segment: key name, [i] for indices, $ for the root
	Value    any
}

// Extractor resolves path expressions against a context.
type Extractor interface {
	Extract(path string, ctx any) ([]Match, error)
}

// PathExtractor is the default Extractor.
type PathExtractor struct{}

// Extract parses path and resolves it against ctx.
func (PathExtractor) Extract(path string, ctx any) ([]Match, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return Resolve(segs, ctx), nil
}

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segWildcard
	segDescend
	segFilter
)

// PathSegment is one parsed component of a path.
type PathSegment struct {
	kind   segmentKind
	key    string // segKey, segDescend ("*" descends into everything)
	index  int    // segIndex
	filter *pathFilter
}

// pathFilter is a parsed [?(...)] predicate evaluated relative to each child.
type pathFilter struct {
	path   []PathSegment
	exists bool
	op     Operator
	negate bool
	value  any
}

// ParsePath parses a path expression into segments.
func ParsePath(path string) ([]PathSegment, error) {
	p := strings.TrimSpace(path)
	if !strings.HasPrefix(p, "$") {
		return nil, fmt.Errorf("%w: %q must start with $", types.ErrMalformedPath, path)
	}
	segs, err := parseSegments(p[1:], path)
	if err != nil {
		return nil, err
	}
	if len(segs) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	return segs, nil
}

// parseSegments parses the portion of a path following the root or current-node marker.
func parseSegments(s, orig string) ([]PathSegment, error) {
	var segs []PathSegment
	malformed := func(why string) error {
		return fmt.Errorf("%w: %q: %s", types.ErrMalformedPath, orig, why)
	}

	for i := 0; i < len(s); {
		switch s[i] {
		case '.':
			if i+1 < len(s) && s[i+1] == '.' {
				name, next := readName(s, i+2)
				if name == "" {
					return nil, malformed("empty name after ..")
				}
				segs = append(segs, PathSegment{kind: segDescend, key: name})
				i = next
				continue
			}
			name, next := readName(s, i+1)
			switch name {
			case "":
				return nil, malformed("empty name after .")
			case "*":
				segs = append(segs, PathSegment{kind: segWildcard})
			default:
				segs = append(segs, PathSegment{kind: segKey, key: name})
			}
			i = next

		case '[':
			end := closingBracket(s, i)
			if end < 0 {
				return nil, malformed("unterminated [")
			}
			seg, err := parseBracket(strings.TrimSpace(s[i+1:end]), orig)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			i = end + 1

		default:
			return nil, malformed(fmt.Sprintf("unexpected %q", s[i]))
		}
	}
	return segs, nil
}

// readName reads a dotted name (or *) starting at i.
func readName(s string, i int) (string, int) {
	if i < len(s) && s[i] == '*' {
		return "*", i + 1
	}
	j := i
	for j < len(s) && s[j] != '.' && s[j] != '[' && s[j] != ' ' {
		j++
	}
	return s[i:j], j
}

// closingBracket finds the ] matching the [ at open, skipping quoted text.
func closingBracket(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseBracket parses the inside of a [...] segment.
func parseBracket(body, orig string) (PathSegment, error) {
	switch {
	case body == "*":
		return PathSegment{kind: segWildcard}, nil
	case len(body) >= 2 && (body[0] == '\'' || body[0] == '"') && body[len(body)-1] == body[0]:
		return PathSegment{kind: segKey, key: body[1 : len(body)-1]}, nil
	case strings.HasPrefix(body, "?"):
		f, err := parseFilter(strings.TrimSpace(body[1:]), orig)
		if err != nil {
			return PathSegment{}, err
		}
		return PathSegment{kind: segFilter, filter: f}, nil
	}

	n, err := strconv.Atoi(body)
	if err != nil {
		return PathSegment{}, fmt.Errorf("%w: %q: bad index %q", types.ErrMalformedPath, orig, body)
	}
	return PathSegment{kind: segIndex, index: n}, nil
}

// filterOperators is ordered so two-character operators are tried first.
var filterOperators = []string{"==", "!=", ">=", "<=", "=", ">", "<"}

// parseFilter parses a filter predicate such as (@.id == 1) or id > 1.
func parseFilter(expr, orig string) (*pathFilter, error) {
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	malformed := func(why string) error {
		return fmt.Errorf("%w: %q: filter %s", types.ErrMalformedPath, orig, why)
	}

	lhs, opText, rhs := splitFilter(expr)
	rel, err := parseRelative(strings.TrimSpace(lhs), orig)
	if err != nil {
		return nil, err
	}
	if opText == "" {
		return &pathFilter{path: rel, exists: true}, nil
	}

	f := &pathFilter{path: rel}
	switch opText {
	case "=", "==":
		f.op = OpEq
	case "!=":
		f.op, f.negate = OpEq, true
	case ">":
		f.op = OpGt
	case "<":
		f.op = OpLt
	case ">=":
		f.op = OpGe
	case "<=":
		f.op = OpLe
	}

	lit, ok := parseLiteral(strings.TrimSpace(rhs))
	if !ok {
		return nil, malformed(fmt.Sprintf("bad literal %q", rhs))
	}
	f.value = lit
	return f, nil
}

// splitFilter splits expr at the first operator outside quotes.
func splitFilter(expr string) (lhs, op, rhs string) {
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		for _, candidate := range filterOperators {
			if strings.HasPrefix(expr[i:], candidate) {
				return expr[:i], candidate, expr[i+len(candidate):]
			}
		}
	}
	return expr, "", ""
}

// parseRelative parses the current-node side of a filter: @, @.a.b, a.b or a[0].
func parseRelative(s, orig string) ([]PathSegment, error) {
	switch {
	case s == "@":
		return nil, nil
	case strings.HasPrefix(s, "@"):
		return parseSegments(s[1:], orig)
	case s == "":
		return nil, fmt.Errorf("%w: %q: empty filter", types.ErrMalformedPath, orig)
	default:
		return parseSegments("."+s, orig)
	}
}

// parseLiteral parses a filter literal: quoted string, number, true, false or null.
func parseLiteral(s string) (any, bool) {
	switch s {
	case "":
		return nil, false
	case "null":
		return nil, true
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

// matches reports whether a child node satisfies the filter. Comparison errors are
// treated as non-matches.
func (f *pathFilter) matches(node any) bool {
	found := Resolve(f.path, node)
	if f.exists {
		return len(found) > 0
	}
	for _, m := range found {
		ok, err := Apply(f.op, m.Value, f.value)
		if err != nil {
			continue
		}
		if ok != f.negate {
			return true
		}
	}
	return false
}

// Resolve walks ctx along segs and returns every match in document order.
func Resolve(segs []PathSegment, ctx any) []Match {
	var out []Match
	resolveRecursive(segs, ctx, "$", "$", &out)
	return out
}

// resolveRecursive follows segs from cur, accumulating the normalized path as it goes.
func resolveRecursive(segs []PathSegment, cur any, path, loc string, out *[]Match) {
	if len(segs) == 0 {
		*out = append(*out, Match{Path: path, Location: loc, Value: cur})
		return
	}

	seg, rest := segs[0], segs[1:]
	switch seg.kind {
	case segKey:
		m, ok := cur.(map[string]any)
		if !ok {
			return
		}
		v, ok := m[seg.key]
		if !ok {
			return
		}
		resolveRecursive(rest, v, path+keyPath(seg.key), seg.key, out)

	case segIndex:
		l, ok := cur.([]any)
		if !ok {
			return
		}
		i := seg.index
		if i < 0 {
			i += len(l)
		}
		if i < 0 || i >= len(l) {
			return
		}
		resolveRecursive(rest, l[i], path+indexPath(i), indexPath(i), out)

	case segWildcard:
		eachChild(cur, func(v any, p, l string) {
			resolveRecursive(rest, v, path+p, l, out)
		})

	case segFilter:
		eachChild(cur, func(v any, p, l string) {
			if seg.filter.matches(v) {
				resolveRecursive(rest, v, path+p, l, out)
			}
		})

	case segDescend:
		descend(seg.key, rest, cur, path, out)
	}
}

// descend implements ..key: match key at this node, then at every descendant.
func descend(key string, rest []PathSegment, cur any, path string, out *[]Match) {
	if key == "*" {
		eachChild(cur, func(v any, p, l string) {
			resolveRecursive(rest, v, path+p, l, out)
			descend(key, rest, v, path+p, out)
		})
		return
	}
	if m, ok := cur.(map[string]any); ok {
		if v, ok := m[key]; ok {
			resolveRecursive(rest, v, path+keyPath(key), key, out)
		}
	}
	eachChild(cur, func(v any, p, _ string) {
		descend(key, rest, v, path+p, out)
	})
}

// eachChild visits list elements in order and map entries in sorted key order.
func eachChild(cur any, fn func(v any, pathPart, loc string)) {
	switch c := cur.(type) {
	case []any:
		for i, v := range c {
			fn(v, indexPath(i), indexPath(i))
		}
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fn(c[k], keyPath(k), k)
		}
	}
}

func keyPath(key string) string {
	if key == "" || strings.ContainsAny(key, ".[]'\" *") {
		return "['" + key + "']"
	}
	return "." + key
}

func indexPath(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
