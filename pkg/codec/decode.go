package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

// Timestamp layouts accepted for !!timestamp scalars, most specific first.
var timeLayouts = []string{
	"2006-1-2T15:4:5.999999999Z07:00",
	"2006-1-2t15:4:5.999999999Z07:00",
	"2006-1-2 15:4:5.999999999",
}

// Psych writes Time as "2024-01-02 03:04:05.000000000 Z" or with a
// "+02:00" offset. yaml.v3 resolves those plain scalars to !!str.
var psychTimeLayouts = []string{
	"2006-1-2 15:4:5.999999999 Z07:00",
	"2006-1-2 15:4:5.999999999 -0700",
}

const dateLayout = "2006-1-2"

// Decoder reconstructs records from YAML, refusing kinds outside its allow-list.
type Decoder struct {
	allow AllowList
}

// NewDecoder creates a Decoder restricted to allow.
func NewDecoder(allow AllowList) *Decoder {
	return &Decoder{allow: allow}
}

// Decode parses a payload produced by Encoder.Encode (or a compatible
// producer). Anchors and aliases are resolved so that an aliased map or
// sequence decodes to the same Go value everywhere it is referenced.
func (d *Decoder) Decode(payload string) (Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) != 1 {
			return Record{}, fmt.Errorf("%w: empty document", core.ErrMalformedRecord)
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return Record{}, fmt.Errorf("%w: record must be a sequence", core.ErrMalformedRecord)
	}
	if n := len(root.Content); n != 3 && n != 4 {
		return Record{}, fmt.Errorf("%w: record has %d elements, want 3 or 4", core.ErrMalformedRecord, n)
	}

	s := &decodeState{allow: d.allow, memo: make(map[*yaml.Node]any)}
	v, err := s.value(root)
	if err != nil {
		return Record{}, err
	}
	items := v.([]any)

	var rec Record
	switch t := items[0].(type) {
	case Class:
		rec.Target = t
	default:
		return Record{}, fmt.Errorf("%w: target must be a class, got %T", core.ErrMalformedRecord, items[0])
	}

	switch m := items[1].(type) {
	case Symbol:
		rec.Method = m
	case string:
		rec.Method = Symbol(m)
	default:
		return Record{}, fmt.Errorf("%w: method must be a symbol, got %T", core.ErrMalformedRecord, items[1])
	}

	args, ok := items[2].([]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: arguments must be a sequence, got %T", core.ErrMalformedRecord, items[2])
	}
	rec.Args = args

	if len(items) == 4 {
		kw, ok := items[3].(map[string]any)
		if !ok {
			return Record{}, fmt.Errorf("%w: keyword arguments must be a map, got %T", core.ErrMalformedRecord, items[3])
		}
		rec.Kwargs = kw
	}

	return rec, nil
}

// DecodeValue parses one YAML value, a scalar or a flow collection, with
// the rules Decode applies to record elements. Empty input is nil.
func (d *Decoder) DecodeValue(src string) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) != 1 {
			return nil, nil
		}
		root = root.Content[0]
	}
	s := &decodeState{allow: d.allow, memo: make(map[*yaml.Node]any)}
	return s.value(root)
}

type decodeState struct {
	allow AllowList
	memo  map[*yaml.Node]any
}

func (s *decodeState) check(k Kind) error {
	if !s.allow.Allows(k) {
		return fmt.Errorf("%w: %s", core.ErrDisallowedType, k)
	}
	return nil
}

func (s *decodeState) value(n *yaml.Node) (any, error) {
	if v, ok := s.memo[n]; ok {
		return v, nil
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("%w: dangling alias %q", core.ErrMalformedRecord, n.Value)
		}
		return s.value(n.Alias)
	case yaml.ScalarNode:
		v, err := s.scalar(n)
		if err != nil {
			return nil, err
		}
		if n.Anchor != "" {
			s.memo[n] = v
		}
		return v, nil
	case yaml.SequenceNode:
		return s.seq(n)
	case yaml.MappingNode:
		return s.mapping(n)
	}
	return nil, fmt.Errorf("%w: unexpected node kind %d", core.ErrMalformedRecord, n.Kind)
}

func (s *decodeState) seq(n *yaml.Node) (any, error) {
	if tag := n.ShortTag(); tag != "!!seq" {
		return nil, fmt.Errorf("%w: tag %s", core.ErrDisallowedType, tag)
	}
	if err := s.check(KindSeq); err != nil {
		return nil, err
	}

	out := make([]any, len(n.Content))
	s.memo[n] = out
	for i, child := range n.Content {
		v, err := s.value(child)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *decodeState) mapping(n *yaml.Node) (any, error) {
	if tag := n.ShortTag(); tag != "!!map" {
		return nil, fmt.Errorf("%w: tag %s", core.ErrDisallowedType, tag)
	}
	if err := s.check(KindMap); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(n.Content)/2)
	s.memo[n] = out

	var merges []map[string]any
	for i := 0; i+1 < len(n.Content); i += 2 {
		kn, vn := n.Content[i], n.Content[i+1]

		if kn.Kind == yaml.ScalarNode && kn.ShortTag() == "!!merge" {
			v, err := s.value(vn)
			if err != nil {
				return nil, err
			}
			switch mv := v.(type) {
			case map[string]any:
				merges = append(merges, mv)
			case []any:
				// Earlier maps in the list win over later ones.
				for _, item := range mv {
					m, ok := item.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("%w: merge list must hold maps", core.ErrMalformedRecord)
					}
					merges = append(merges, m)
				}
			default:
				return nil, fmt.Errorf("%w: merge value must be a map or a list of maps", core.ErrMalformedRecord)
			}
			continue
		}

		key, err := s.key(kn)
		if err != nil {
			return nil, err
		}
		v, err := s.value(vn)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	for _, m := range merges {
		for k, v := range m {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out, nil
}

func (s *decodeState) key(n *yaml.Node) (string, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%w: map keys must be scalars", core.ErrUnsupportedType)
	}
	v, err := s.scalar(n)
	if err != nil {
		return "", err
	}
	switch k := v.(type) {
	case string:
		return k, nil
	case Symbol:
		return string(k), nil
	}
	return "", fmt.Errorf("%w: map key of type %T", core.ErrUnsupportedType, v)
}

func (s *decodeState) scalar(n *yaml.Node) (any, error) {
	tag := n.ShortTag()
	switch tag {
	case "!!null":
		if err := s.check(KindNull); err != nil {
			return nil, err
		}
		return nil, nil

	case "!!bool":
		if err := s.check(KindBool); err != nil {
			return nil, err
		}
		return parseBool(n.Value)

	case "!!int":
		if err := s.check(KindInt); err != nil {
			return nil, err
		}
		return parseInt(n.Value)

	case "!!float":
		if err := s.check(KindFloat); err != nil {
			return nil, err
		}
		return parseFloat(n.Value)

	case "!!str":
		if isPlainSymbol(n) {
			if err := s.check(KindSymbol); err != nil {
				return nil, err
			}
			return Symbol(n.Value[1:]), nil
		}
		if isPlain(n) {
			if t, ok := parseTime(psychTimeLayouts, n.Value); ok {
				if err := s.check(KindTime); err != nil {
					return nil, err
				}
				return t, nil
			}
		}
		if err := s.check(KindString); err != nil {
			return nil, err
		}
		return n.Value, nil

	case "!!timestamp":
		return s.timestamp(n.Value)

	case tagSymbol, tagSymbolAlt:
		if err := s.check(KindSymbol); err != nil {
			return nil, err
		}
		return Symbol(n.Value), nil

	case tagClass:
		if err := s.check(KindClass); err != nil {
			return nil, err
		}
		if n.Value == "" {
			return nil, fmt.Errorf("%w: empty class name", core.ErrMalformedRecord)
		}
		return Class(n.Value), nil
	}

	return nil, fmt.Errorf("%w: tag %s", core.ErrDisallowedType, tag)
}

func (s *decodeState) timestamp(v string) (any, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		if err := s.check(KindDate); err != nil {
			return nil, err
		}
		return DateOf(t), nil
	}
	if err := s.check(KindTime); err != nil {
		return nil, err
	}
	if t, ok := parseTime(timeLayouts, v); ok {
		return t, nil
	}
	if t, ok := parseTime(psychTimeLayouts, v); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: invalid timestamp %q", core.ErrMalformedRecord, v)
}

func parseTime(layouts []string, v string) (time.Time, bool) {
	if v == "" || v[0] < '0' || v[0] > '9' {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isPlain reports whether a scalar was written untagged and unquoted.
func isPlain(n *yaml.Node) bool {
	const quoted = yaml.TaggedStyle | yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle |
		yaml.LiteralStyle | yaml.FoldedStyle
	return n.Style&quoted == 0
}

// isPlainSymbol reports whether an untagged, unquoted string scalar is
// written in `:name` form.
func isPlainSymbol(n *yaml.Node) bool {
	return isPlain(n) && len(n.Value) > 1 && n.Value[0] == ':'
}

func parseBool(v string) (any, error) {
	switch strings.ToLower(v) {
	case "true", "yes", "on", "y":
		return true, nil
	case "false", "no", "off", "n":
		return false, nil
	}
	return nil, fmt.Errorf("%w: invalid bool %q", core.ErrMalformedRecord, v)
}

func parseInt(v string) (any, error) {
	plain := strings.ReplaceAll(v, "_", "")
	i, err := strconv.ParseInt(plain, 0, 64)
	if err == nil {
		return int(i), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		if u, uerr := strconv.ParseUint(plain, 0, 64); uerr == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid int %q", core.ErrMalformedRecord, v)
}

func parseFloat(v string) (any, error) {
	switch strings.ToLower(v) {
	case ".nan":
		return math.NaN(), nil
	case ".inf", "+.inf":
		return math.Inf(1), nil
	case "-.inf":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, "_", ""), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid float %q", core.ErrMalformedRecord, v)
	}
	return f, nil
}
