package xltpl

import (
	"reflect"
	"strconv"
	"time"
)

// Kind classifies a substitution value.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindBytes
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindBytes:
		return "bytes"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return "missing"
}

// Value wraps caller data with its classified kind.
type Value struct {
	kind Kind
	raw  any
	rv   reflect.Value
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// ValueOf classifies v. Pointers and interfaces are followed; nil is missing.
func ValueOf(v any) Value {
	if v == nil {
		return Value{}
	}
	if val, ok := v.(Value); ok {
		return val
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Value{}
		}
		rv = rv.Elem()
	}
	out := Value{raw: rv.Interface(), rv: rv}
	switch {
	case rv.Type() == timeType:
		out.kind = KindDate
	case rv.Type() == bytesType:
		out.kind = KindBytes
	default:
		switch rv.Kind() {
		case reflect.String:
			out.kind = KindString
		case reflect.Bool:
			out.kind = KindBool
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			out.kind = KindNumber
		case reflect.Slice, reflect.Array:
			out.kind = KindSequence
		case reflect.Map, reflect.Struct:
			out.kind = KindMapping
		default:
			out.kind = KindMissing
		}
	}
	return out
}

// Kind returns the classified kind.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the underlying Go value.
func (v Value) Raw() any { return v.raw }

// IsEmpty reports whether the value is missing or the empty string.
func (v Value) IsEmpty() bool {
	return v.kind == KindMissing || (v.kind == KindString && v.rv.String() == "")
}

// Len returns the number of elements of a sequence.
func (v Value) Len() int {
	if v.kind != KindSequence {
		return 0
	}
	return v.rv.Len()
}

// Index returns element i of a sequence.
func (v Value) Index(i int) Value {
	if v.kind != KindSequence || i < 0 || i >= v.rv.Len() {
		return Value{}
	}
	return ValueOf(v.rv.Index(i).Interface())
}

// Items returns all elements of a sequence.
func (v Value) Items() []Value {
	n := v.Len()
	items := make([]Value, n)
	for i := range n {
		items[i] = v.Index(i)
	}
	return items
}

// Str returns the string payload of a string value.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.rv.String()
}

// Float returns the numeric payload of a number value.
func (v Value) Float() float64 {
	if v.kind != KindNumber {
		return 0
	}
	switch v.rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.rv.Uint())
	}
	return v.rv.Float()
}

// Bytes returns the payload of a byte-slice value.
func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.rv.Bytes()
}

// Stringify renders a value the way it is written into a cell:
// numbers in shortest form, booleans as 1/0, dates as serial days,
// and everything else (missing, bytes, sequences, mappings) as "".
func (v Value) Stringify() string {
	switch v.kind {
	case KindString:
		return v.rv.String()
	case KindNumber:
		switch v.rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(v.rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(v.rv.Uint(), 10)
		case reflect.Float32:
			return strconv.FormatFloat(v.rv.Float(), 'f', -1, 32)
		}
		return strconv.FormatFloat(v.rv.Float(), 'f', -1, 64)
	case KindBool:
		if v.rv.Bool() {
			return "1"
		}
		return "0"
	case KindDate:
		return strconv.FormatFloat(DateSerial(v.raw.(time.Time)), 'f', -1, 64)
	}
	return ""
}

// DateSerial converts t to spreadsheet serial days:
// unixMillis/86400000 + 25569, with no timezone adjustment.
func DateSerial(t time.Time) float64 {
	return float64(t.UnixMilli())/86400000 + 25569
}
