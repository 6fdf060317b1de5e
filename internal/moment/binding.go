package moment

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Rules whose $data pointers leave the checked value need data the host never
// hands to a keyword. They are run by a binder instead: a schema node applied
// to the document root through nothing but $ref and allOf. The binder walks
// the document alongside the compiled schema, following properties,
// patternProperties, additionalProperties, items, prefixItems,
// additionalItems, $ref and allOf the way the validator does, and runs every
// such rule it meets with the whole document in scope.
//
// A rule applied through any other keyword (anyOf, oneOf, then, else, not,
// dependentSchemas, ...) is never reached by a binder. It runs at its own
// node, where the date itself and every check without outside data still
// apply.

var errNoSchemaLocation = errors.New("cannot locate compiled schema")

type extCompiler struct {
	keyword *Keyword
}

type nodeSchema struct {
	rule *Program
	// self is the compiled schema the node belongs to. It is nil when the
	// node has no instance applicators.
	self *jsonschema.Schema

	once  sync.Once
	binds bool
}

func (e extCompiler) Compile(ctx jsonschema.CompilerContext, m map[string]any) (jsonschema.ExtSchema, error) {
	node := &nodeSchema{}
	if raw, ok := m[KeywordName]; ok {
		prog, err := e.keyword.Compile(raw)
		if err != nil {
			return nil, err
		}
		node.rule = prog
	}
	self, err := compiledSelf(ctx, m)
	if err != nil {
		return nil, err
	}
	node.self = self

	if node.rule == nil && node.self == nil {
		return nil, nil
	}
	return node, nil
}

// compiledSelf returns the compiled schema of the node m describes. The
// extension API only hands out children, so the node's location is cut from
// a child's. The schema is still being compiled here and is only read during
// validation.
func compiledSelf(ctx jsonschema.CompilerContext, m map[string]any) (*jsonschema.Schema, error) {
	ptrs := childPointers(m)
	if len(ptrs) == 0 {
		return nil, nil
	}
	for _, ptr := range ptrs {
		child, err := ctx.Compile(ptr, false)
		if err != nil {
			return nil, err
		}
		loc, ok := strings.CutSuffix(child.Location, "/"+ptr)
		if !ok {
			continue
		}
		return ctx.CompileRef(loc, "", false)
	}
	return nil, fmt.Errorf("%s: %w for %q", KeywordName, errNoSchemaLocation, ptrs[0])
}

// childPointers lists the instance applicators of m as schema pointers,
// plain keywords first.
func childPointers(m map[string]any) []string {
	var out []string
	if _, ok := m["additionalProperties"].(map[string]any); ok {
		out = append(out, "additionalProperties")
	}
	switch items := m["items"].(type) {
	case map[string]any:
		out = append(out, "items")
	case []any:
		if len(items) > 0 {
			out = append(out, "items/0")
		}
		if _, ok := m["additionalItems"].(map[string]any); ok {
			out = append(out, "additionalItems")
		}
	}
	if prefix, ok := m["prefixItems"].([]any); ok && len(prefix) > 0 {
		out = append(out, "prefixItems/0")
	}
	if props, ok := m["properties"].(map[string]any); ok {
		for _, name := range sortedKeys(props) {
			out = append(out, "properties/"+escapePath(name))
		}
	}
	if patterns, ok := m["patternProperties"].(map[string]any); ok {
		for _, pattern := range sortedKeys(patterns) {
			out = append(out, "patternProperties/"+escapePath(pattern))
		}
	}
	return out
}

func (n *nodeSchema) Validate(ctx jsonschema.ValidationContext, v any) error {
	n.once.Do(func() {
		n.binds = n.self != nil && dataRuleBelow(n.self)
	})
	if n.rule == nil && !n.binds {
		return nil
	}

	here := ctx.Error("", "")
	followed, descended := classify(here.KeywordLocation)
	binder := followed && !descended
	var errs []error

	if n.rule != nil {
		dataPath := here.InstanceLocation
		schemaPath := here.KeywordLocation + "/" + KeywordName
		var rec *ErrorRecord
		switch {
		case !n.rule.HasDataRefs():
			rec = n.rule.CheckAt(v, valueScope{value: v}, dataPath, schemaPath)
		case binder:
			rec = n.rule.CheckAt(v, docScope{doc: v}, dataPath, schemaPath)
		case !followed:
			rec = n.rule.checkLocal(v, valueScope{value: v}, dataPath, schemaPath)
		default:
			// run by the binder above
		}
		if rec != nil {
			errs = append(errs, ctx.Error(KeywordName, "%s", rec.Message))
		}
	}

	if binder && n.binds {
		w := &walker{ctx: ctx, doc: v, keywordLocation: here.KeywordLocation}
		w.descend(n.self, nil, nil, v)
		errs = append(errs, w.errs...)
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return jsonschema.ValidationError{}.Group(ctx.Error("", ""), errs...)
}

// classify reads a keyword location. followed reports whether every keyword
// on it is one a binder follows; descended whether any of them moved into
// the instance.
func classify(keywordLocation string) (followed, descended bool) {
	if keywordLocation == "" {
		return true, false
	}
	segs := strings.Split(strings.TrimPrefix(keywordLocation, "/"), "/")
	for i := 0; i < len(segs); i++ {
		switch segs[i] {
		case "properties", "patternProperties", "prefixItems":
			descended = true
			i++
		case "additionalProperties", "additionalItems":
			descended = true
		case "items":
			descended = true
			if i+1 < len(segs) && arrayIndex.MatchString(segs[i+1]) {
				i++
			}
		case "allOf":
			i++
		case "$ref":
		default:
			return false, descended
		}
	}
	return true, descended
}

// dataRuleBelow reports whether a rule with outside data is reachable from
// self's instance applicators.
func dataRuleBelow(self *jsonschema.Schema) bool {
	seen := make(map[*jsonschema.Schema]bool)
	var below func(s *jsonschema.Schema) bool
	below = func(s *jsonschema.Schema) bool {
		if s == nil || seen[s] {
			return false
		}
		seen[s] = true
		if node, ok := s.Extensions[KeywordName].(*nodeSchema); ok && node.rule != nil && node.rule.HasDataRefs() {
			return true
		}
		for _, c := range append(instanceChildren(s), inPlaceChildren(s)...) {
			if below(c) {
				return true
			}
		}
		return false
	}
	for _, c := range instanceChildren(self) {
		if below(c) {
			return true
		}
	}
	return false
}

func instanceChildren(s *jsonschema.Schema) []*jsonschema.Schema {
	var out []*jsonschema.Schema
	for _, sub := range s.Properties {
		out = append(out, sub)
	}
	for _, sub := range s.PatternProperties {
		out = append(out, sub)
	}
	if sub, ok := s.AdditionalProperties.(*jsonschema.Schema); ok {
		out = append(out, sub)
	}
	switch items := s.Items.(type) {
	case *jsonschema.Schema:
		out = append(out, items)
	case []*jsonschema.Schema:
		out = append(out, items...)
	}
	if sub, ok := s.AdditionalItems.(*jsonschema.Schema); ok {
		out = append(out, sub)
	}
	out = append(out, s.PrefixItems...)
	if s.Items2020 != nil {
		out = append(out, s.Items2020)
	}
	return out
}

func inPlaceChildren(s *jsonschema.Schema) []*jsonschema.Schema {
	out := append([]*jsonschema.Schema(nil), s.AllOf...)
	if s.Ref != nil {
		out = append(out, s.Ref)
	}
	return out
}

// walker runs the bound rules below a binder. tokens lead from the document
// root to the current value; spath is the keyword path from the binder.
type walker struct {
	ctx             jsonschema.ValidationContext
	doc             any
	keywordLocation string
	errs            []error
}

// descend applies s's instance applicators to v in the validator's order.
func (w *walker) descend(s *jsonschema.Schema, tokens, spath []string, v any) {
	switch v := v.(type) {
	case map[string]any:
		patterns := sortedPatterns(s)
		for _, name := range sortedKeys(v) {
			val := v[name]
			next := extend(tokens, name)
			matched := false
			if sub, ok := s.Properties[name]; ok {
				matched = true
				w.visit(sub, next, extend(spath, "properties/"+escapePath(name)), val)
			}
			for _, p := range patterns {
				if p.re.MatchString(name) {
					matched = true
					w.visit(p.sch, next, extend(spath, "patternProperties/"+escapePath(p.re.String())), val)
				}
			}
			if sub, ok := s.AdditionalProperties.(*jsonschema.Schema); ok && !matched {
				w.visit(sub, next, extend(spath, "additionalProperties"), val)
			}
		}
	case []any:
		switch items := s.Items.(type) {
		case *jsonschema.Schema:
			for i, item := range v {
				w.visit(items, extend(tokens, strconv.Itoa(i)), extend(spath, "items"), item)
			}
		case []*jsonschema.Schema:
			extra, _ := s.AdditionalItems.(*jsonschema.Schema)
			for i, item := range v {
				idx := strconv.Itoa(i)
				switch {
				case i < len(items):
					w.visit(items[i], extend(tokens, idx), extend(spath, "items/"+idx), item)
				case extra != nil:
					w.visit(extra, extend(tokens, idx), extend(spath, "additionalItems"), item)
				}
			}
		}
		for i, item := range v {
			idx := strconv.Itoa(i)
			switch {
			case i < len(s.PrefixItems):
				w.visit(s.PrefixItems[i], extend(tokens, idx), extend(spath, "prefixItems/"+idx), item)
			case s.Items2020 != nil:
				w.visit(s.Items2020, extend(tokens, idx), extend(spath, "items"), item)
			}
		}
	}
}

func (w *walker) visit(s *jsonschema.Schema, tokens, spath []string, v any) {
	if node, ok := s.Extensions[KeywordName].(*nodeSchema); ok && node.rule != nil && node.rule.HasDataRefs() {
		w.check(s, node.rule, tokens, spath, v)
	}
	w.descend(s, tokens, spath, v)
	if s.Ref != nil {
		w.visit(s.Ref, tokens, extend(spath, "$ref"), v)
	}
	for i, sub := range s.AllOf {
		w.visit(sub, tokens, extend(spath, "allOf/"+strconv.Itoa(i)), v)
	}
}

// check runs a bound rule and reports a failure at the rule's own instance
// and keyword locations.
func (w *walker) check(s *jsonschema.Schema, prog *Program, tokens, spath []string, v any) {
	keywordPath := strings.Join(extend(spath, KeywordName), "/")
	rec := prog.CheckAt(v, docScope{doc: w.doc, path: tokens}, instancePointer(tokens), w.keywordLocation+"/"+keywordPath)
	if rec == nil {
		return
	}
	e := w.ctx.Error(keywordPath, "%s", rec.Message)
	e.InstanceLocation = rec.DataPath
	e.AbsoluteKeywordLocation = s.Location + "/" + KeywordName
	w.errs = append(w.errs, e)
}

type pattern struct {
	re  *regexp.Regexp
	sch *jsonschema.Schema
}

func sortedPatterns(s *jsonschema.Schema) []pattern {
	out := make([]pattern, 0, len(s.PatternProperties))
	for re, sch := range s.PatternProperties {
		out = append(out, pattern{re: re, sch: sch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].re.String() < out[j].re.String() })
	return out
}

func extend(path []string, seg string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), seg)
}

func instancePointer(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(escapePath(tok))
	}
	return b.String()
}

// valueScope resolves pointers that stay on the checked value.
type valueScope struct {
	value any
}

func (s valueScope) Resolve(ref DataRef) (any, bool) {
	if ref.Absolute || ref.Up > 0 {
		return nil, false
	}
	return lookup(s.value, ref.Tokens)
}

// docScope resolves pointers against the whole document. path leads from the
// root to the checked value; a pointer climbing above the root resolves to
// nothing.
type docScope struct {
	doc  any
	path []string
}

func (s docScope) Resolve(ref DataRef) (any, bool) {
	if ref.Absolute {
		return lookup(s.doc, ref.Tokens)
	}
	if ref.Up > len(s.path) {
		return nil, false
	}
	start, ok := lookup(s.doc, s.path[:len(s.path)-ref.Up])
	if !ok {
		return nil, false
	}
	return lookup(start, ref.Tokens)
}

func escapePath(token string) string {
	return url.PathEscape(escapeToken(token))
}
