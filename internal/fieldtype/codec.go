package fieldtype

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EncodeStrings JSON-encodes a list of strings for a multiselect column or
// an options payload.
func EncodeStrings(values []string) string {
	if values == nil {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// DecodeStrings decodes a JSON string list. Empty or null input decodes to
// an empty slice.
func DecodeStrings(src any) ([]string, error) {
	s, ok := asString(src)
	if !ok || s == "" || s == "[]" {
		return []string{}, nil
	}
	var result []string
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return []string{}, fmt.Errorf("decode string list: %w", err)
	}
	return result, nil
}

// EncodeIDs JSON-encodes a list of record ids for a multireference column.
func EncodeIDs(ids []int64) string {
	if ids == nil {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

// DecodeIDs decodes a multireference column value into record ids. Accepts
// a JSON list of numbers (canonical form) or of numeric strings.
func DecodeIDs(src any) ([]int64, error) {
	s, ok := asString(src)
	if !ok || s == "" || s == "[]" {
		return []int64{}, nil
	}
	var raw []json.Number
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return []int64{}, fmt.Errorf("decode id list: %w", err)
	}
	ids := make([]int64, 0, len(raw))
	for _, n := range raw {
		id, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return []int64{}, fmt.Errorf("decode id list: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CoerceImport converts a raw imported string into the value stored for the
// given field type. Empty input, after trimming, becomes nil. Values that
// fail to parse are passed through unchanged; the engine performs no
// implicit coercion beyond this best effort.
func CoerceImport(t Type, raw string) any {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}

	switch t {
	case Number:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return value
	case Boolean:
		switch strings.ToLower(value) {
		case "true", "yes", "1", "on":
			return 1
		default:
			return 0
		}
	case MultiSelect:
		parts := strings.Split(value, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return EncodeStrings(items)
	case Reference:
		if id, err := strconv.ParseInt(value, 10, 64); err == nil {
			return id
		}
		return value
	case MultiReference:
		parts := strings.Split(value, ",")
		ids := make([]int64, 0, len(parts))
		for _, p := range parts {
			if id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		return EncodeIDs(ids)
	case Text, Date, Email, URL, Phone, RichText, Dropdown, Image, File:
		return value
	default:
		return value
	}
}

func asString(src any) (string, bool) {
	switch v := src.(type) {
	case string:
		return strings.TrimSpace(v), true
	case []byte:
		return strings.TrimSpace(string(v)), true
	default:
		return "", false
	}
}
