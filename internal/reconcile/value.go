package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies which member of the Value union is populated
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindFloat
	KindTime
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Timestamp layouts used by the remote APIs
const (
	canonicalSecondLayout = "2006-01-02T15:04:05Z"
	canonicalMilliLayout  = "2006-01-02T15:04:05.000Z"
)

// Value is a tagged union carrying one incoming or stored field value
type Value struct {
	kind Kind
	str  string
	num  float64
	tm   time.Time
	ref  uint
}

// Values maps mergeable field names to incoming values
type Values map[string]Value

func Null() Value { return Value{kind: KindNull} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

func Time(t time.Time) Value { return Value{kind: KindTime, tm: t} }

func Ref(id uint) Value { return Value{kind: KindRef, ref: id} }

// OptionalString returns Null for a nil pointer
func OptionalString(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

// OptionalRef returns Null for a nil pointer
func OptionalRef(id *uint) Value {
	if id == nil {
		return Null()
	}
	return Ref(*id)
}

// ParseTime parses an RFC 3339 timestamp as sent by the providers.
// The empty string is treated as null.
func ParseTime(s string) (Value, error) {
	if s == "" {
		return Null(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Value{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Time(t), nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindFloat:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindTime:
		return CanonicalTime(v.tm)
	case KindRef:
		return strconv.FormatUint(uint64(v.ref), 10)
	default:
		return "null"
	}
}

// CanonicalTime renders t the way GitHub and Trello do: UTC with a Z suffix,
// milliseconds only when non-zero.
func CanonicalTime(t time.Time) string {
	u := t.UTC()
	if u.Nanosecond()/int(time.Millisecond) == 0 {
		return u.Format(canonicalSecondLayout)
	}
	return u.Format(canonicalMilliLayout)
}

// IsClose reports whether two floats are equal within a relative tolerance
// of 1e-9.
func IsClose(a, b float64) bool {
	return isClose(a, b, 1e-9, 0)
}

func isClose(a, b, relTol, absTol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= math.Max(relTol*math.Max(math.Abs(a), math.Abs(b)), absTol)
}

// Equal compares two values with type-aware semantics: timestamps are
// compared in canonical textual form and floats within tolerance.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.str == b.str
	case KindFloat:
		return IsClose(a.num, b.num)
	case KindTime:
		return CanonicalTime(a.tm) == CanonicalTime(b.tm)
	case KindRef:
		return a.ref == b.ref
	}
	return false
}
