package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dbsmedya/contentsync/internal/record"
)

// collectionSchema is the minimum shape of a static collection: an array of
// objects whose known fields carry the expected JSON types.
const collectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id":             {"type": ["string", "integer", "null"]},
      "name":           {"type": ["string", "null"]},
      "title":          {"type": ["string", "null"]},
      "bio":            {"type": ["string", "null"]},
      "email":          {"type": ["string", "null"]},
      "phone":          {"type": ["string", "null"]},
      "specialties":    {"type": ["array", "string", "null"], "items": {"type": "string"}},
      "certifications": {"type": ["array", "string", "null"], "items": {"type": "string"}},
      "is_founder":     {"type": ["boolean", "string", "integer", "null"]},
      "visible":        {"type": ["boolean", "string", "integer", "null"]},
      "image":          {"type": ["string", "null"]},
      "order":          {"type": ["number", "string", "null"]}
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(collectionSchema)

// FieldError is one schema violation at a JSON path.
type FieldError struct {
	Field   string
	Message string
}

// ShapeError reports a collection that does not have the expected shape.
type ShapeError struct {
	Collection string
	Errors     []FieldError
	Cause      error
}

func (e *ShapeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "collection %q has an unexpected shape", e.Collection)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	for i, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, fe.Field, fe.Message)
	}
	return sb.String()
}

func (e *ShapeError) Unwrap() error {
	return e.Cause
}

// ValidateShape checks decoded records against the collection schema.
func ValidateShape(collection string, records []record.Raw) error {
	// Round-trip through JSON so YAML-specific types are normalized.
	doc, err := json.Marshal(records)
	if err != nil {
		return &ShapeError{Collection: collection, Cause: err}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ShapeError{Collection: collection, Cause: err}
	}
	if result.Valid() {
		return nil
	}

	shapeErr := &ShapeError{
		Collection: collection,
		Errors:     make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		shapeErr.Errors = append(shapeErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return shapeErr
}
