package stub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// Operator names a predicate kind.
type Operator string

// Predicate operators.
const (
	OpEquals     Operator = "equals"
	OpDeepEquals Operator = "deepEquals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpMatches    Operator = "matches"
	OpExists     Operator = "exists"
	OpNot        Operator = "not"
	OpOr         Operator = "or"
	OpAnd        Operator = "and"
	OpInject     Operator = "inject"
)

var operators = []Operator{
	OpEquals, OpDeepEquals, OpContains, OpStartsWith, OpEndsWith,
	OpMatches, OpExists, OpNot, OpOr, OpAnd, OpInject,
}

// Predicate is a compiled request condition.
type Predicate struct {
	Operator      Operator
	CaseSensitive bool

	expected map[string]any
	except   *regexp.Regexp
	selector jp.Expr
	children []*Predicate
	program  *vm.Program
}

func parsePredicate(raw json.RawMessage) (*Predicate, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, imposter.Configurationf("predicate must be an object: %v", err)
	}

	p := &Predicate{}
	for _, op := range operators {
		if _, ok := members[string(op)]; !ok {
			continue
		}
		if p.Operator != "" {
			return nil, imposter.Configurationf("predicate declares both %s and %s", p.Operator, op)
		}
		p.Operator = op
	}
	if p.Operator == "" {
		return nil, imposter.Configurationf("predicate has no operator")
	}

	if cs, ok := members["caseSensitive"]; ok {
		if err := json.Unmarshal(cs, &p.CaseSensitive); err != nil {
			return nil, imposter.Configurationf("caseSensitive must be a boolean")
		}
	}
	if ex, ok := members["except"]; ok {
		var pattern string
		if err := json.Unmarshal(ex, &pattern); err != nil {
			return nil, imposter.Configurationf("except must be a string")
		}
		if !p.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, imposter.Configurationf("except: %v", err)
		}
		p.except = re
	}
	if js, ok := members["jsonpath"]; ok {
		var spec struct {
			Selector string `json:"selector"`
		}
		if err := json.Unmarshal(js, &spec); err != nil || spec.Selector == "" {
			return nil, imposter.Configurationf("jsonpath requires a selector")
		}
		x, err := parseSelector(spec.Selector)
		if err != nil {
			return nil, err
		}
		p.selector = x
	}

	body := members[string(p.Operator)]
	switch p.Operator {
	case OpNot:
		child, err := parsePredicate(body)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		p.children = []*Predicate{child}

	case OpOr, OpAnd:
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, imposter.Configurationf("%s must be an array of predicates", p.Operator)
		}
		for i, item := range list {
			child, err := parsePredicate(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", p.Operator, i, err)
			}
			p.children = append(p.children, child)
		}

	case OpInject:
		var src string
		if err := json.Unmarshal(body, &src); err != nil {
			return nil, imposter.Configurationf("inject must be a string expression")
		}
		program, err := compilePredicateInjection(src)
		if err != nil {
			return nil, err
		}
		p.program = program

	default:
		if err := decodeValue(body, &p.expected); err != nil {
			return nil, imposter.Configurationf("%s must be an object of request fields", p.Operator)
		}
		if p.Operator == OpMatches {
			if err := p.checkPatterns(p.expected); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Predicate) checkPatterns(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := p.checkPatterns(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := p.checkPatterns(child); err != nil {
				return err
			}
		}
	default:
		if _, err := regexp.Compile(textOf(v)); err != nil {
			return imposter.Configurationf("matches: %v", err)
		}
	}
	return nil
}

func (p *Predicate) usesInjection() bool {
	if p.Operator == OpInject {
		return true
	}
	for _, c := range p.children {
		if c.usesInjection() {
			return true
		}
	}
	return false
}

// Match evaluates the predicate against a request.
func (p *Predicate) Match(request map[string]any) (bool, error) {
	switch p.Operator {
	case OpNot:
		ok, err := p.children[0].Match(request)
		return !ok && err == nil, err
	case OpOr:
		for _, c := range p.children {
			ok, err := c.Match(request)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpAnd:
		for _, c := range p.children {
			ok, err := c.Match(request)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpInject:
		return runPredicateInjection(p.program, request)
	}

	for field, want := range p.expected {
		got, _ := lookup(request, field, p.CaseSensitive)
		if p.selector != nil {
			got = selectValue(p.selector, got)
		}
		if !p.matchValue(want, got) {
			return false, nil
		}
	}
	return true, nil
}

func (p *Predicate) matchValue(want, got any) bool {
	switch p.Operator {
	case OpExists:
		return p.exists(want, got)
	case OpDeepEquals:
		return p.deepEquals(want, got)
	}

	switch w := want.(type) {
	case map[string]any:
		obj, ok := asObject(got)
		if !ok {
			return false
		}
		for key, child := range w {
			val, _ := lookup(obj, key, p.CaseSensitive)
			if !p.matchValue(child, val) {
				return false
			}
		}
		return true
	case []any:
		items := asList(got)
		for _, child := range w {
			found := false
			for _, item := range items {
				if p.matchValue(child, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	if items, ok := got.([]any); ok {
		for _, item := range items {
			if p.matchValue(want, item) {
				return true
			}
		}
		return false
	}
	return p.compareText(textOf(want), p.actualText(got))
}

func (p *Predicate) compareText(want, got string) bool {
	if p.Operator == OpMatches {
		pattern := want
		if !p.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(got)
	}
	if !p.CaseSensitive {
		want = strings.ToLower(want)
		got = strings.ToLower(got)
	}
	switch p.Operator {
	case OpContains:
		return strings.Contains(got, want)
	case OpStartsWith:
		return strings.HasPrefix(got, want)
	case OpEndsWith:
		return strings.HasSuffix(got, want)
	default:
		return got == want
	}
}

func (p *Predicate) deepEquals(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		obj, ok := asObject(got)
		if !ok {
			return len(w) == 0 && got == nil
		}
		if len(obj) != len(w) {
			return false
		}
		for key, child := range w {
			val, found := lookup(obj, key, p.CaseSensitive)
			if !found || !p.deepEquals(child, val) {
				return false
			}
		}
		return true
	case []any:
		items := asList(got)
		if len(items) != len(w) {
			return false
		}
		for i := range w {
			if !p.deepEquals(w[i], items[i]) {
				return false
			}
		}
		return true
	}
	want2, got2 := textOf(want), p.actualText(got)
	if !p.CaseSensitive {
		return strings.EqualFold(want2, got2)
	}
	return want2 == got2
}

func (p *Predicate) exists(want, got any) bool {
	if w, ok := want.(map[string]any); ok {
		obj, _ := asObject(got)
		for key, child := range w {
			val, _ := lookup(obj, key, p.CaseSensitive)
			if !p.exists(child, val) {
				return false
			}
		}
		return true
	}
	expect, _ := want.(bool)
	present := got != nil && p.actualText(got) != ""
	return present == expect
}

func (p *Predicate) actualText(v any) string {
	s := textOf(v)
	if p.except != nil {
		s = p.except.ReplaceAllString(s, "")
	}
	return s
}

// lookup finds key in obj, ignoring case unless caseSensitive.
func lookup(obj map[string]any, key string, caseSensitive bool) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	if caseSensitive {
		return nil, false
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// asObject views v as an object. JSON text bodies are decoded.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, true
	case string:
		var obj map[string]any
		if err := decodeValue([]byte(t), &obj); err != nil {
			return nil, false
		}
		return obj, true
	}
	return nil, false
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		var list []any
		if err := decodeValue([]byte(t), &list); err == nil {
			return list
		}
	}
	return []any{v}
}

// textOf renders a scalar the way it appears on the wire.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// decodeValue unmarshals JSON keeping numbers in their textual form.
func decodeValue(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}
