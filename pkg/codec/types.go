package codec

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Symbol is an identifier value. It is written as a plain `:name` scalar.
type Symbol string

// Class names a registered receiver. It is written as `!ruby/class Name`.
type Class string

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Record is a captured method call.
//
// A record with nil (or empty) Kwargs is written as a 3-element sequence,
// otherwise as a 4-element sequence whose last element holds the keyword
// arguments.
type Record struct {
	Target Class
	Method Symbol
	Args   []any
	Kwargs map[string]any
}

// HasKwargs reports whether the record carries keyword arguments.
func (r Record) HasKwargs() bool {
	return len(r.Kwargs) > 0
}

// Kind is a reconstructible value type.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindSymbol Kind = "symbol"
	KindDate   Kind = "date"
	KindTime   Kind = "time"
	KindSeq    Kind = "seq"
	KindMap    Kind = "map"
	KindClass  Kind = "class"
)

var allKinds = []Kind{
	KindNull, KindBool, KindInt, KindFloat, KindString, KindSymbol,
	KindDate, KindTime, KindSeq, KindMap, KindClass,
}

// AllowList is the set of kinds the codec will write or reconstruct.
// The zero value allows nothing.
type AllowList struct {
	kinds map[Kind]struct{}
}

// DefaultAllowList allows every kind the codec knows about.
func DefaultAllowList() AllowList {
	return NewAllowList(allKinds...)
}

// NewAllowList returns an allow-list containing exactly kinds.
func NewAllowList(kinds ...Kind) AllowList {
	a := AllowList{kinds: make(map[Kind]struct{}, len(kinds))}
	for _, k := range kinds {
		a.kinds[k] = struct{}{}
	}
	return a
}

// ParseKinds builds an allow-list from kind names, as found in config files.
func ParseKinds(names []string) (AllowList, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k := Kind(strings.ToLower(strings.TrimSpace(name)))
		if !known(k) {
			return AllowList{}, fmt.Errorf("codec: unknown kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return NewAllowList(kinds...), nil
}

func known(k Kind) bool {
	for _, kk := range allKinds {
		if kk == k {
			return true
		}
	}
	return false
}

// Allows reports whether k is permitted.
func (a AllowList) Allows(k Kind) bool {
	_, ok := a.kinds[k]
	return ok
}

// Without returns a copy of the allow-list with kinds removed.
func (a AllowList) Without(kinds ...Kind) AllowList {
	out := NewAllowList(a.Kinds()...)
	for _, k := range kinds {
		delete(out.kinds, k)
	}
	return out
}

// Kinds returns the permitted kinds in sorted order.
func (a AllowList) Kinds() []Kind {
	out := make([]Kind, 0, len(a.kinds))
	for k := range a.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
