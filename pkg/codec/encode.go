package codec

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

const (
	tagClass     = "!ruby/class"
	tagSymbol    = "!ruby/symbol"
	tagSymbolAlt = "!ruby/sym"
)

var (
	symbolType = reflect.TypeOf(Symbol(""))
	classType  = reflect.TypeOf(Class(""))
	dateType   = reflect.TypeOf(Date{})
	timeType   = reflect.TypeOf(time.Time{})
)

// plainSymbol matches symbol names that can be written as `:name` without quoting.
var plainSymbol = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*[?!=]?$`)

// Encoder writes records as YAML.
type Encoder struct {
	allow AllowList
}

// NewEncoder creates an Encoder that refuses kinds outside allow.
func NewEncoder(allow AllowList) *Encoder {
	return &Encoder{allow: allow}
}

// Encode serializes a record.
func (e *Encoder) Encode(rec Record) (string, error) {
	s := &encodeState{allow: e.allow, seen: make(map[refKey]*yaml.Node)}

	target, err := s.class(rec.Target)
	if err != nil {
		return "", err
	}
	method, err := s.symbol(rec.Method)
	if err != nil {
		return "", err
	}
	args, err := s.seq(reflect.ValueOf(rec.Args))
	if err != nil {
		return "", err
	}

	root := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{target, method, args}}

	if rec.HasKwargs() {
		kwargs, err := s.kwargs(rec.Kwargs)
		if err != nil {
			return "", err
		}
		root.Content = append(root.Content, kwargs)
	}

	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		return "", fmt.Errorf("codec: marshal record: %w", err)
	}
	return string(out), nil
}

// refKey identifies a shared map, slice or pointer.
type refKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type encodeState struct {
	allow  AllowList
	seen   map[refKey]*yaml.Node
	anchor int
}

func (s *encodeState) check(k Kind) error {
	if !s.allow.Allows(k) {
		return fmt.Errorf("%w: %s", core.ErrDisallowedType, k)
	}
	return nil
}

func (s *encodeState) scalar(k Kind, tag, value string) (*yaml.Node, error) {
	if err := s.check(k); err != nil {
		return nil, err
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}, nil
}

// alias returns an alias node when the reference was already written,
// anchoring the original on first reuse.
func (s *encodeState) alias(key refKey) *yaml.Node {
	orig, ok := s.seen[key]
	if !ok {
		return nil
	}
	if orig.Anchor == "" {
		s.anchor++
		orig.Anchor = strconv.Itoa(s.anchor)
	}
	return &yaml.Node{Kind: yaml.AliasNode, Alias: orig, Value: orig.Anchor}
}

func (s *encodeState) class(c Class) (*yaml.Node, error) {
	if c == "" {
		return nil, fmt.Errorf("%w: empty class name", core.ErrUnsupportedType)
	}
	n, err := s.scalar(KindClass, tagClass, string(c))
	if err != nil {
		return nil, err
	}
	n.Style = yaml.TaggedStyle
	return n, nil
}

func (s *encodeState) symbol(sym Symbol) (*yaml.Node, error) {
	name := string(sym)
	if plainSymbol.MatchString(name) {
		return s.scalar(KindSymbol, "!!str", ":"+name)
	}
	n, err := s.scalar(KindSymbol, tagSymbol, name)
	if err != nil {
		return nil, err
	}
	n.Style = yaml.TaggedStyle
	return n, nil
}

func (s *encodeState) str(v string) (*yaml.Node, error) {
	n, err := s.scalar(KindString, "!!str", v)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(v, ":") {
		n.Style = yaml.DoubleQuotedStyle
	} else if _, ok := parseTime(psychTimeLayouts, v); ok {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n, nil
}

func (s *encodeState) float(f float64) (*yaml.Node, error) {
	var v string
	switch {
	case math.IsNaN(f):
		v = ".nan"
	case math.IsInf(f, 1):
		v = ".inf"
	case math.IsInf(f, -1):
		v = "-.inf"
	default:
		v = strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(v, ".eE") {
			v += ".0"
		}
	}
	return s.scalar(KindFloat, "!!float", v)
}

func (s *encodeState) node(v reflect.Value) (*yaml.Node, error) {
	if !v.IsValid() {
		return s.scalar(KindNull, "!!null", "null")
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return s.scalar(KindNull, "!!null", "null")
		}
		return s.node(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return s.scalar(KindNull, "!!null", "null")
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer()}
		if a := s.alias(key); a != nil {
			return a, nil
		}
		n, err := s.node(v.Elem())
		if err != nil {
			return nil, err
		}
		if n.Kind != yaml.AliasNode {
			s.seen[key] = n
		}
		return n, nil
	}

	switch v.Type() {
	case symbolType:
		return s.symbol(Symbol(v.String()))
	case classType:
		return s.class(Class(v.String()))
	case dateType:
		return s.scalar(KindDate, "!!timestamp", v.Interface().(Date).String())
	case timeType:
		return s.scalar(KindTime, "!!timestamp", v.Interface().(time.Time).Format(time.RFC3339Nano))
	}

	switch v.Kind() {
	case reflect.Bool:
		return s.scalar(KindBool, "!!bool", strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return s.scalar(KindInt, "!!int", strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return s.scalar(KindInt, "!!int", strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		return s.float(v.Float())
	case reflect.String:
		return s.str(v.String())
	case reflect.Slice:
		if v.IsNil() {
			return s.scalar(KindNull, "!!null", "null")
		}
		return s.seq(v)
	case reflect.Array:
		return s.seq(v)
	case reflect.Map:
		if v.IsNil() {
			return s.scalar(KindNull, "!!null", "null")
		}
		return s.mapping(v, false)
	}

	return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedType, v.Type())
}

func (s *encodeState) seq(v reflect.Value) (*yaml.Node, error) {
	if err := s.check(KindSeq); err != nil {
		return nil, err
	}

	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if v.Kind() == reflect.Slice && v.Len() > 0 {
		key := refKey{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}
		if a := s.alias(key); a != nil {
			return a, nil
		}
		s.seen[key] = n
	}

	if !v.IsValid() {
		return n, nil
	}
	for i := 0; i < v.Len(); i++ {
		child, err := s.node(v.Index(i))
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, child)
	}
	return n, nil
}

func (s *encodeState) mapping(v reflect.Value, symbolKeys bool) (*yaml.Node, error) {
	if err := s.check(KindMap); err != nil {
		return nil, err
	}
	if v.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map key type %s", core.ErrUnsupportedType, v.Type().Key())
	}

	key := refKey{typ: v.Type(), ptr: v.Pointer()}
	if a := s.alias(key); a != nil {
		return a, nil
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	s.seen[key] = n

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, k := range keys {
		var kn *yaml.Node
		var err error
		if symbolKeys || k.Type() == symbolType {
			kn, err = s.symbol(Symbol(k.String()))
		} else {
			kn, err = s.str(k.String())
		}
		if err != nil {
			return nil, err
		}
		vn, err := s.node(v.MapIndex(k))
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, kn, vn)
	}
	return n, nil
}

func (s *encodeState) kwargs(kw map[string]any) (*yaml.Node, error) {
	return s.mapping(reflect.ValueOf(kw), true)
}
