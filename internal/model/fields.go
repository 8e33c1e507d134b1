package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FieldRole is the semantic role the validator applies to a field, resolved
// from the field's name. Unrecognized columns get RoleNone and ride along in
// the expense untouched.
type FieldRole string

// Field role constants.
const (
	RoleNone           FieldRole = "none"
	RoleDate           FieldRole = "date"
	RoleCategory       FieldRole = "category"
	RoleAmount         FieldRole = "amount"
	RoleRequiredText   FieldRole = "required_text"
	RoleAttachmentFlag FieldRole = "attachment_flag"
)

// RoleForField resolves a field name to its semantic role. Matching is
// case-insensitive and tolerant of import-specific decorations around the
// recognized words.
func RoleForField(name string) FieldRole {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.Contains(lower, "attach"):
		return RoleAttachmentFlag
	case strings.Contains(lower, "date"):
		return RoleDate
	case strings.Contains(lower, "category"):
		return RoleCategory
	case strings.Contains(lower, "amount") || strings.Contains(lower, "total") || strings.Contains(lower, "cost"):
		return RoleAmount
	case strings.Contains(lower, "merchant") || strings.Contains(lower, "vendor") || strings.Contains(lower, "description"):
		return RoleRequiredText
	default:
		return RoleNone
	}
}

// Field is one named expense column. Editable marks fields the user may
// change; computed and import-only columns are not editable and are exempt
// from validation.
type Field struct {
	Name     string
	Value    string
	Editable bool
}

// Role returns the semantic role inferred from the field's name.
func (f Field) Role() FieldRole {
	return RoleForField(f.Name)
}

// FieldMap is an ordered map of expense fields keyed by name. Insertion
// order is preserved so imported rows round-trip with their original column
// layout.
type FieldMap struct {
	index  map[string]int
	fields []Field
}

// NewFieldMap returns an empty ordered field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{index: make(map[string]int)}
}

// Set stores a field value, updating in place if the name already exists and
// appending otherwise.
func (m *FieldMap) Set(name, value string, editable bool) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[name]; ok {
		m.fields[i].Value = value
		m.fields[i].Editable = editable
		return
	}
	m.index[name] = len(m.fields)
	m.fields = append(m.fields, Field{Name: name, Value: value, Editable: editable})
}

// SetValue updates an existing field's value without touching its
// editability, appending an editable field if the name is new.
func (m *FieldMap) SetValue(name, value string) {
	if i, ok := m.index[name]; ok {
		m.fields[i].Value = value
		return
	}
	m.Set(name, value, true)
}

// Get returns the field for a name and whether it exists.
func (m *FieldMap) Get(name string) (Field, bool) {
	if m.index == nil {
		return Field{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// Value returns the value for a name, or "" if the field does not exist.
func (m *FieldMap) Value(name string) string {
	f, _ := m.Get(name)
	return f.Value
}

// Has reports whether a field with the given name exists.
func (m *FieldMap) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Fields returns the fields in insertion order. The returned slice is a
// copy; mutating it does not affect the map.
func (m *FieldMap) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Names returns the field names in insertion order.
func (m *FieldMap) Names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (m *FieldMap) Len() int {
	return len(m.fields)
}

// ByRole returns the first field carrying the given semantic role.
func (m *FieldMap) ByRole(role FieldRole) (Field, bool) {
	for _, f := range m.fields {
		if f.Role() == role {
			return f, true
		}
	}
	return Field{}, false
}

// Clone returns a deep copy of the field map.
func (m *FieldMap) Clone() *FieldMap {
	out := NewFieldMap()
	if m == nil {
		return out
	}
	for _, f := range m.fields {
		out.Set(f.Name, f.Value, f.Editable)
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object preserving insertion
// order, which is what the scoring and bulk-matching collaborators expect.
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the field map, preserving the
// object's key order. Decoded fields are marked editable.
func (m *FieldMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}
	m.index = make(map[string]int)
	m.fields = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		m.Set(key, value, true)
	}
	_, err := dec.Token() // closing brace
	return err
}
