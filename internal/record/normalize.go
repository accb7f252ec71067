package record

import "strings"

// KeyStrategy selects how a record's correlation key is derived.
type KeyStrategy string

const (
	// KeyByID prefers the persisted id and falls back to the normalized name.
	KeyByID KeyStrategy = "id"
	// KeyByName always keys by normalized name. Use it when local ids were never
	// assigned by the backend.
	KeyByName KeyStrategy = "name"
)

// aliases maps canonical fields to the source-specific names they may appear under.
// The first present key wins.
var aliases = map[string][]string{
	FieldName:           {"name", "full_name", "fullName"},
	FieldTitle:          {"title", "role", "position"},
	FieldBio:            {"bio", "description"},
	FieldEmail:          {"email"},
	FieldPhone:          {"phone", "telephone"},
	FieldSpecialties:    {"specialties", "skills"},
	FieldCertifications: {"certifications", "certs"},
	FieldFounder:        {"is_founder", "isFounder", "founder"},
	FieldVisible:        {"visible", "is_visible", "isVisible", "published"},
	FieldImage:          {"image", "image_url", "imageUrl", "photo"},
	FieldOrder:          {"order", "display_order", "displayOrder"},
}

// Normalize converts a raw record into its canonical form using KeyByID.
func Normalize(raw Raw, source Source) Record {
	return NormalizeWith(raw, source, KeyByID)
}

// NormalizeWith converts a raw record into its canonical form. It never fails:
// missing or mistyped fields fall back to their zero value.
func NormalizeWith(raw Raw, source Source, keyBy KeyStrategy) Record {
	r := Record{
		Source:         source,
		Specialties:    []string{},
		Certifications: []string{},
	}

	r.ID = ToString(lookup(raw, "id", "_id", "uuid"))
	r.Name = ToString(lookup(raw, aliases[FieldName]...))
	r.Title = ToString(lookup(raw, aliases[FieldTitle]...))
	r.Bio = ToString(lookup(raw, aliases[FieldBio]...))
	r.Email = ToString(lookup(raw, aliases[FieldEmail]...))
	r.Phone = ToString(lookup(raw, aliases[FieldPhone]...))
	r.Specialties = ToStringSlice(lookup(raw, aliases[FieldSpecialties]...))
	r.Certifications = ToStringSlice(lookup(raw, aliases[FieldCertifications]...))
	r.Founder = ToBool(lookup(raw, aliases[FieldFounder]...))
	r.Visible = ToBool(lookup(raw, aliases[FieldVisible]...))
	r.Image = normalizeImage(ToString(lookup(raw, aliases[FieldImage]...)))
	r.Order = ToInt(lookup(raw, aliases[FieldOrder]...))

	r.NameKey = NameKey(r.Name)
	r.Key = deriveKey(r, keyBy)
	return r
}

// NormalizeAll normalizes a collection, preserving order.
func NormalizeAll(raws []Raw, source Source, keyBy KeyStrategy) []Record {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, NormalizeWith(raw, source, keyBy))
	}
	return out
}

// NameKey case-folds a name and collapses internal whitespace.
func NameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func deriveKey(r Record, keyBy KeyStrategy) string {
	if keyBy == KeyByName && r.NameKey != "" {
		return r.NameKey
	}
	if r.ID != "" {
		return r.ID
	}
	return r.NameKey
}

// normalizeImage drops transient upload markers (blob and data URLs) that only exist
// in a browser session and never match the stored reference.
func normalizeImage(image string) string {
	lower := strings.ToLower(image)
	if strings.HasPrefix(lower, "blob:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	return image
}

func lookup(raw Raw, names ...string) any {
	for _, name := range names {
		if v, ok := raw[name]; ok && v != nil {
			return v
		}
	}
	return nil
}
