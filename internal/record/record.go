// Package record defines the canonical record shape compared during reconciliation
// and the normalizer that produces it from either content source.
package record

import (
	"reflect"
	"sort"
)

// Source identifies which side of the reconciliation a record came from.
type Source string

const (
	SourceFrontend Source = "frontend"
	SourceBackend  Source = "backend"
)

// Raw is a record exactly as decoded from JSON or YAML.
type Raw map[string]any

// Canonical field names. The order of this list is the order fields are compared
// and reported in.
const (
	FieldName           = "name"
	FieldTitle          = "title"
	FieldBio            = "bio"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldSpecialties    = "specialties"
	FieldCertifications = "certifications"
	FieldFounder        = "is_founder"
	FieldVisible        = "visible"
	FieldImage          = "image"
	FieldOrder          = "order"
)

// FieldNames lists every comparable field in canonical order.
var FieldNames = []string{
	FieldName,
	FieldTitle,
	FieldBio,
	FieldEmail,
	FieldPhone,
	FieldSpecialties,
	FieldCertifications,
	FieldFounder,
	FieldVisible,
	FieldImage,
	FieldOrder,
}

// Record is a normalized entity. Every field is populated: strings default to "",
// slices to empty (never nil), booleans to false, order to 0.
type Record struct {
	Key     string `json:"key"`
	ID      string `json:"id,omitempty"`
	NameKey string `json:"-"`
	Source  Source `json:"source"`

	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Bio            string   `json:"bio"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Specialties    []string `json:"specialties"`
	Certifications []string `json:"certifications"`
	Founder        bool     `json:"is_founder"`
	Visible        bool     `json:"visible"`
	Image          string   `json:"image"`
	Order          int      `json:"order"`
}

// Label returns a human readable name for display.
func (r Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Key
}

// Value returns the display value of a canonical field, preserving original array order.
func (r Record) Value(field string) (any, bool) {
	switch field {
	case FieldName:
		return r.Name, true
	case FieldTitle:
		return r.Title, true
	case FieldBio:
		return r.Bio, true
	case FieldEmail:
		return r.Email, true
	case FieldPhone:
		return r.Phone, true
	case FieldSpecialties:
		return r.Specialties, true
	case FieldCertifications:
		return r.Certifications, true
	case FieldFounder:
		return r.Founder, true
	case FieldVisible:
		return r.Visible, true
	case FieldImage:
		return r.Image, true
	case FieldOrder:
		return r.Order, true
	}
	return nil, false
}

// Comparable returns the value used for equality checks: arrays are replaced by
// their canonical, order-insensitive form.
func (r Record) Comparable(field string) any {
	v, _ := r.Value(field)
	if values, ok := v.([]string); ok {
		return Canonical(values)
	}
	return v
}

// Canonical returns a sorted copy of values. The input is left untouched.
func Canonical(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

// Equal compares a field across two records using canonical array ordering.
func Equal(a, b Record, field string) bool {
	return reflect.DeepEqual(a.Comparable(field), b.Comparable(field))
}

// Payload builds the JSON body sent to the backend for create and update calls.
// Fields listed in ignore are left out so excluded fields are never overwritten.
func Payload(r Record, ignore []string) map[string]any {
	skip := make(map[string]bool, len(ignore))
	for _, f := range ignore {
		skip[f] = true
	}

	payload := make(map[string]any, len(FieldNames))
	for _, field := range FieldNames {
		if skip[field] {
			continue
		}
		v, _ := r.Value(field)
		payload[field] = v
	}
	return payload
}
