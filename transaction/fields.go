package transaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Fixed record keys. Extra fields may not use any of them.
const (
	KeyID         = "id"
	KeyUser       = "user"
	KeyChange     = "change"
	KeyTimestamp  = "timestamp"
	KeyOldBalance = "old_balance"
	KeyNewBalance = "new_balance"
)

var reservedKeys = map[string]struct{}{
	KeyID:         {},
	KeyUser:       {},
	KeyChange:     {},
	KeyTimestamp:  {},
	KeyOldBalance: {},
	KeyNewBalance: {},
}

// ErrEmptyFieldKey is returned when an extra field has an empty key.
var ErrEmptyFieldKey = errors.New("transaction: empty extra field key")

// KeyCollisionError reports an extra field whose key collides with a fixed
// record key.
type KeyCollisionError struct {
	Key      string
	Reserved string
}

func (e *KeyCollisionError) Error() string {
	if e.Key == e.Reserved {
		return fmt.Sprintf("transaction: extra field %q collides with a fixed record key", e.Key)
	}
	return fmt.Sprintf("transaction: extra field %q collides with fixed record key %q", e.Key, e.Reserved)
}

// Fields holds caller-supplied extra values attached to a record.
type Fields map[string]any

// IsReservedKey reports whether key names, or is a spelling variant of, a
// fixed record key. Matching ignores case and whitespace so that keys like
// "New _Balance" are caught too.
func IsReservedKey(key string) (string, bool) {
	norm := normalizeKey(key)
	if _, ok := reservedKeys[norm]; ok {
		return norm, true
	}
	return "", false
}

// Validate checks every key. Keys are visited in sorted order so the
// reported collision is deterministic.
func (f Fields) Validate() error {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return ErrEmptyFieldKey
		}
		if reserved, ok := IsReservedKey(k); ok {
			return &KeyCollisionError{Key: k, Reserved: reserved}
		}
	}
	return nil
}

// With returns a copy of f with key set to value. It does not validate.
func (f Fields) With(key string, value any) Fields {
	out := f.Clone()
	if out == nil {
		out = make(Fields, 1)
	}
	out[key] = value
	return out
}

// Clone returns a shallow copy of f, or nil for an empty set.
func (f Fields) Clone() Fields {
	if len(f) == 0 {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Normalize returns f in the form every store reads it back in: values go
// through JSON, integral numbers become int64, other numbers float64,
// objects map[string]any and arrays []any. A record built from normalized
// fields compares equal to the same record listed from any store.
func (f Fields) Normalize() (Fields, error) {
	if len(f) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("transaction: encode extra fields: %w", err)
	}
	return DecodeFields(data)
}

// DecodeFields parses JSON-encoded extra fields without losing integer
// precision. Empty input and empty objects decode to nil.
func DecodeFields(data []byte) (Fields, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("transaction: decode extra fields: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		out[k] = plainNumbers(v)
	}
	return out, nil
}

func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = plainNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = plainNumbers(inner)
		}
		return t
	default:
		return v
	}
}

func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, key)
}
