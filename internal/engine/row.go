package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is a JSON object that keeps its keys in the order they were sent, so
// column lists come out in the caller's order instead of map order.
type Row struct {
	Keys   []string
	Values map[string]any
}

// NewRow builds a Row from alternating key/value pairs. Handy in tests and
// in hand-written business statements.
func NewRow(kv ...any) *Row {
	r := &Row{Values: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return r
}

func (r *Row) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Values[key]
	return v, ok
}

// Set adds or replaces key. A replaced key keeps its original position.
func (r *Row) Set(key string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, exists := r.Values[key]; !exists {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = v
}

// Clone returns a copy that can be modified without touching r.
func (r *Row) Clone() *Row {
	c := &Row{Values: make(map[string]any, r.Len())}
	if r == nil {
		return c
	}
	c.Keys = append([]string(nil), r.Keys...)
	for k, v := range r.Values {
		c.Values[k] = v
	}
	return c
}

func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Keys)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object")
	}

	r.Keys = nil
	r.Values = make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Set(key, NormalizeNumber(v))
	}
	_, err = dec.Token()
	return err
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeNumber turns a top-level json.Number into int64 when it is
// integral and float64 otherwise, so the driver binds a native type.
// Nested objects keep json.Number, which marshals back unchanged.
func NormalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
