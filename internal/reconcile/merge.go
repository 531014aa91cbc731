package reconcile

import (
	"fmt"
	"time"
)

// Field binds a mergeable field name to typed storage on an entity
type Field struct {
	Name string
	get  func() Value
	set  func(Value) error
}

func kindMismatch(name string, want Kind, got Value) error {
	return fmt.Errorf("field %s: cannot assign %s value to %s field", name, got.kind, want)
}

// StringField binds a non-null string. A null value stores the empty string.
func StringField(name string, p *string) Field {
	return Field{
		Name: name,
		get:  func() Value { return String(*p) },
		set: func(v Value) error {
			switch v.kind {
			case KindString:
				*p = v.str
			case KindNull:
				*p = ""
			default:
				return kindMismatch(name, KindString, v)
			}
			return nil
		},
	}
}

func OptionalStringField(name string, p **string) Field {
	return Field{
		Name: name,
		get:  func() Value { return OptionalString(*p) },
		set: func(v Value) error {
			switch v.kind {
			case KindString:
				s := v.str
				*p = &s
			case KindNull:
				*p = nil
			default:
				return kindMismatch(name, KindString, v)
			}
			return nil
		},
	}
}

// FloatField binds a nullable float such as a list or card position
func FloatField(name string, p **float64) Field {
	return Field{
		Name: name,
		get: func() Value {
			if *p == nil {
				return Null()
			}
			return Float(**p)
		},
		set: func(v Value) error {
			switch v.kind {
			case KindFloat:
				f := v.num
				*p = &f
			case KindNull:
				*p = nil
			default:
				return kindMismatch(name, KindFloat, v)
			}
			return nil
		},
	}
}

// TimeField binds a non-null timestamp. A zero time reads as null.
func TimeField(name string, p *time.Time) Field {
	return Field{
		Name: name,
		get: func() Value {
			if p.IsZero() {
				return Null()
			}
			return Time(*p)
		},
		set: func(v Value) error {
			switch v.kind {
			case KindTime:
				*p = v.tm
			case KindNull:
				*p = time.Time{}
			default:
				return kindMismatch(name, KindTime, v)
			}
			return nil
		},
	}
}

func OptionalTimeField(name string, p **time.Time) Field {
	return Field{
		Name: name,
		get: func() Value {
			if *p == nil {
				return Null()
			}
			return Time(**p)
		},
		set: func(v Value) error {
			switch v.kind {
			case KindTime:
				t := v.tm
				*p = &t
			case KindNull:
				*p = nil
			default:
				return kindMismatch(name, KindTime, v)
			}
			return nil
		},
	}
}

// RefField binds a nullable foreign key
func RefField(name string, p **uint) Field {
	return Field{
		Name: name,
		get:  func() Value { return OptionalRef(*p) },
		set: func(v Value) error {
			switch v.kind {
			case KindRef:
				id := v.ref
				*p = &id
			case KindNull:
				*p = nil
			default:
				return kindMismatch(name, KindRef, v)
			}
			return nil
		},
	}
}

// Changes is the per-entity log of fields modified during a pass
type Changes struct {
	fields []string
}

func (c *Changes) Add(name string) {
	if c.Has(name) {
		return
	}
	c.fields = append(c.fields, name)
}

func (c *Changes) Has(name string) bool {
	for _, f := range c.fields {
		if f == name {
			return true
		}
	}
	return false
}

func (c *Changes) Fields() []string {
	out := make([]string, len(c.fields))
	copy(out, c.fields)
	return out
}

func (c *Changes) Changed() bool {
	return len(c.fields) > 0
}

func (c *Changes) Reset() {
	c.fields = nil
}

// Apply assigns incoming to f unless it equals the current value. It
// returns true when the field was modified.
func Apply(changes *Changes, f Field, incoming Value) (bool, error) {
	if Equal(f.get(), incoming) {
		return false, nil
	}
	if err := f.set(incoming); err != nil {
		return false, err
	}
	changes.Add(f.Name)
	return true, nil
}

// Merge applies every value in data whose name is in the fields whitelist.
// Names missing from data are left untouched. Nothing is persisted.
func Merge(changes *Changes, fields []Field, data Values, skip ...string) error {
	for _, f := range fields {
		if contains(skip, f.Name) {
			continue
		}
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		if _, err := Apply(changes, f, v); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
