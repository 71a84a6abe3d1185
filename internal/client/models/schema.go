// Package models describes the papershelf entity schemas: which fields are
// required, which defaults are stamped on creation, which fields never leave
// the device, and how local field names map to the remote service's names.
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
)

// Common field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"

	FieldTitle         = "title"
	FieldDOI           = "doi"
	FieldArxivID       = "arxivId"
	FieldReadingStatus = "readingStatus"
	FieldRating        = "rating"
	FieldPagesRead     = "pagesRead"
	FieldS3Key         = "s3Key"
	FieldHasPDF        = "hasPdf"
	FieldFileData      = "fileData"

	FieldName     = "name"
	FieldPaperIDs = "paperIds"

	FieldPaperID = "paperId"
)

// Remote-side names that differ from the local ones.
const (
	RemoteStatus = "status"
	RemotePDFURL = "pdfUrl"
)

// Schema is the static description of one entity type.
type Schema struct {
	Entity   api.Entity
	Required []string
	// Defaults returns a fresh set of values stamped on new records when the
	// field is absent.
	Defaults func() map[string]any
	// LocalOnly fields are kept on the device and stripped before sending.
	LocalOnly []string
	// KeepUpdatedAt is false for entities whose updatedAt is device-local.
	KeepUpdatedAt bool
}

var schemas = map[api.Entity]Schema{
	api.Papers: {
		Entity:   api.Papers,
		Required: []string{FieldTitle},
		Defaults: func() map[string]any {
			return map[string]any{
				FieldReadingStatus: "unread",
				FieldRating:        nil,
				FieldPagesRead:     0,
				FieldHasPDF:        false,
			}
		},
		LocalOnly:     []string{FieldFileData, FieldHasPDF},
		KeepUpdatedAt: true,
	},
	api.Collections: {
		Entity:   api.Collections,
		Required: []string{FieldName},
		Defaults: func() map[string]any {
			return map[string]any{FieldPaperIDs: []any{}}
		},
	},
	api.Annotations: {
		Entity:   api.Annotations,
		Required: []string{FieldPaperID},
		Defaults: func() map[string]any {
			return map[string]any{"color": "yellow"}
		},
	},
}

// SchemaFor returns the schema of e. It panics on an unknown entity, which
// can only come from a programming error since entities are parsed upfront.
func SchemaFor(e api.Entity) Schema {
	s, ok := schemas[e]
	if !ok {
		panic(fmt.Sprintf("models: no schema for %q", e))
	}
	return s
}

// ValidationError is returned before any I/O when input is unusable.
type ValidationError struct {
	Entity api.Entity
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that every required field is present and non-blank.
func Validate(e api.Entity, rec api.Record) error {
	for _, f := range SchemaFor(e).Required {
		v, ok := rec[f]
		if !ok || v == nil {
			return &ValidationError{Entity: e, Field: f, Reason: "is required"}
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return &ValidationError{Entity: e, Field: f, Reason: "must not be blank"}
		}
	}
	return nil
}

// ValidatePatch rejects patches that blank out a required field or try to
// change the id.
func ValidatePatch(e api.Entity, patch api.Record) error {
	if _, ok := patch[FieldID]; ok {
		return &ValidationError{Entity: e, Field: FieldID, Reason: "cannot be changed"}
	}
	for _, f := range SchemaFor(e).Required {
		v, ok := patch[f]
		if !ok {
			continue
		}
		if v == nil {
			return &ValidationError{Entity: e, Field: f, Reason: "is required"}
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return &ValidationError{Entity: e, Field: f, Reason: "must not be blank"}
		}
	}
	return nil
}

// ApplyDefaults fills absent fields from the schema defaults in place.
func ApplyDefaults(e api.Entity, rec api.Record) {
	for k, v := range SchemaFor(e).Defaults() {
		if _, ok := rec[k]; !ok {
			rec[k] = v
		}
	}
}

// LocalOnly returns the subset of rec that must never be transmitted.
func LocalOnly(e api.Entity, rec api.Record) api.Record {
	out := api.Record{}
	for _, f := range SchemaFor(e).LocalOnly {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}
