package board

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Fields are JSON members of a note or connection this package does not model.
// They are carried through untouched so that the object a client sends is the
// object other clients receive.
type Fields map[string]json.RawMessage

// split decodes a JSON object, moves the members named in known out into the
// returned map, and leaves everything else in extra.
func split(data []byte, known ...string) (fields map[string]json.RawMessage, extra Fields, err error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil, err
	}
	fields = make(map[string]json.RawMessage, len(known))
	for _, k := range known {
		if v, ok := all[k]; ok {
			fields[k] = v
			delete(all, k)
		}
	}
	if len(all) > 0 {
		extra = Fields(all)
	}
	return fields, extra, nil
}

// objectWriter builds a JSON object member by member.
type objectWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *objectWriter) field(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.raw(name, raw)
	return nil
}

func (w *objectWriter) raw(name string, raw json.RawMessage) {
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	key, _ := json.Marshal(name)
	w.buf.Write(key)
	w.buf.WriteByte(':')
	w.buf.Write(raw)
	w.n++
}

// extras appends unmodelled members in key order, skipping any that collide
// with a modelled member.
func (w *objectWriter) extras(extra Fields, known ...string) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !contains(known, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.raw(k, extra[k])
	}
}

func (w *objectWriter) bytes() []byte {
	if w.n == 0 {
		return []byte("{}")
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes()
}

// member writes a modelled member. Non-zero values are always written; a
// zero value is written in form f.
func (w *objectWriter) member(name string, v any, zero bool, f form) error {
	if !zero {
		return w.field(name, v)
	}
	switch f {
	case formOmitted:
		return nil
	case formNull:
		w.raw(name, json.RawMessage("null"))
		return nil
	default:
		return w.field(name, v)
	}
}

// form is how a zero-valued member appears in an encoded object.
type form uint8

const (
	formWritten form = iota + 1 // the zero value, e.g. "" or {"x":0,"y":0}
	formOmitted
	formNull
)

// shape holds two bits per member slot: the form a zero-valued member was
// decoded in, when that differs from the type's default form. The zero shape
// means every member uses its default.
type shape uint16

func (s shape) form(slot int, def form) form {
	if f := form(s >> (2 * slot) & 3); f != 0 {
		return f
	}
	return def
}

func (s *shape) record(slot int, f, def form) {
	if f != def {
		*s |= shape(f) << (2 * slot)
	}
}

// formOf reports how the member name appeared in a decoded object.
func formOf(fields map[string]json.RawMessage, name string) form {
	raw, ok := fields[name]
	switch {
	case !ok:
		return formOmitted
	case string(raw) == "null":
		return formNull
	default:
		return formWritten
	}
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
