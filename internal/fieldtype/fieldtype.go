// Package fieldtype enumerates the field types a dynamic table column can
// carry and maps each one to its storage representation. The mapping is
// pure: unknown types fold to plain text so that schema evolution stays
// additive instead of failing.
package fieldtype

// Type is the semantic type of a field definition.
type Type string

const (
	Text           Type = "text"
	Number         Type = "number"
	Date           Type = "date"
	Boolean        Type = "boolean"
	Email          Type = "email"
	URL            Type = "url"
	Phone          Type = "phone"
	RichText       Type = "richtext"
	Dropdown       Type = "dropdown"
	MultiSelect    Type = "multiselect"
	Image          Type = "image"
	File           Type = "file"
	Reference      Type = "reference"
	MultiReference Type = "multireference"
)

// All lists every recognized field type, in the order pickers display them.
func All() []Type {
	return []Type{
		Text, Number, Date, Boolean, Email, URL, Phone, RichText,
		Dropdown, MultiSelect, Image, File, Reference, MultiReference,
	}
}

// Valid reports whether t is one of the recognized field types.
func Valid(t Type) bool {
	switch t {
	case Text, Number, Date, Boolean, Email, URL, Phone, RichText,
		Dropdown, MultiSelect, Image, File, Reference, MultiReference:
		return true
	}
	return false
}

// ScalarKind is the primitive storage representation of a field value.
type ScalarKind int

const (
	KindText       ScalarKind = iota // free text
	KindReal                         // floating-point number
	KindBool                         // 0/1
	KindStringList                   // JSON-encoded list of strings
	KindID                           // integer id of a referenced record
	KindIDList                       // JSON-encoded list of integer ids
)

func (k ScalarKind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string_list"
	case KindID:
		return "id"
	case KindIDList:
		return "id_list"
	default:
		return "text"
	}
}

// StorageKind maps a field type to its scalar storage kind. Total: unknown
// types are stored as text, never rejected.
func StorageKind(t Type) ScalarKind {
	switch t {
	case Number:
		return KindReal
	case Boolean:
		return KindBool
	case MultiSelect:
		return KindStringList
	case Reference:
		return KindID
	case MultiReference:
		return KindIDList
	case Text, Date, Email, URL, Phone, RichText, Dropdown, Image, File:
		return KindText
	default:
		return KindText
	}
}

// IsTextLike reports whether a field of this type is a candidate for
// display labels: a short human-readable string.
func IsTextLike(t Type) bool {
	switch t {
	case Text, Email, Phone, URL:
		return true
	default:
		return false
	}
}

// Searchable reports whether text search applies to a field of this type.
func Searchable(t Type) bool {
	switch t {
	case Text, Email, URL, Phone, RichText:
		return true
	default:
		return false
	}
}

// IsReference reports whether the field points at records of another table.
func IsReference(t Type) bool {
	return t == Reference || t == MultiReference
}

// FilterKind is the predicate shape used when filtering on a field.
type FilterKind string

const (
	FilterText        FilterKind = "text"
	FilterNumberRange FilterKind = "number_range"
	FilterDateRange   FilterKind = "date_range"
	FilterBoolean     FilterKind = "boolean"
	FilterDropdown    FilterKind = "dropdown"
	FilterReference   FilterKind = "reference"
)

// FilterKindOf maps a field type to the filter predicate built for it.
// Types without a dedicated predicate fall back to text containment.
func FilterKindOf(t Type) FilterKind {
	switch t {
	case Number:
		return FilterNumberRange
	case Date:
		return FilterDateRange
	case Boolean:
		return FilterBoolean
	case Dropdown:
		return FilterDropdown
	case Reference:
		return FilterReference
	case Text, Email, URL, Phone, RichText, MultiSelect, Image, File, MultiReference:
		return FilterText
	default:
		return FilterText
	}
}
