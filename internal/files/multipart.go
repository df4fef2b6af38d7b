package files

import (
	"encoding/json"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/schema"
)

// Upload is one validated multipart file pending persistence.
type Upload struct {
	Field         string
	SanitizedName string
	Header        *multipart.FileHeader
}

// ParseForm separates a multipart form into the record payload and the
// validated file uploads. File fields are validated against their
// options (count, per-file size, MIME patterns); any failure aborts the
// whole operation with a combined validation error. The returned data
// map carries the sanitized filenames for each file field so the record
// row can be persisted before the bytes are written.
func ParseForm(form *multipart.Form, snap *schema.Snapshot) (map[string]any, []Upload, error) {
	data := map[string]any{}
	var uploads []Upload
	var problems []string

	for key, values := range form.Value {
		if len(values) == 0 {
			continue
		}
		f := snap.Field(key)
		if f == nil {
			problems = append(problems, "unknown field "+strconv.Quote(key))
			continue
		}
		value, err := coerceFormValue(f, values[0])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		data[key] = value
	}

	for key, headers := range form.File {
		f := snap.Field(key)
		if f == nil || f.Type != models.FieldTypeFile {
			problems = append(problems, "unknown file field "+strconv.Quote(key))
			continue
		}
		opts, err := schema.DecodeFileOptions(f.Options)
		if err != nil {
			problems = append(problems, "field "+strconv.Quote(key)+": invalid file options")
			continue
		}
		if len(headers) > opts.MaxFiles {
			problems = append(problems, "field "+strconv.Quote(key)+" accepts at most "+strconv.Itoa(opts.MaxFiles)+" file(s)")
			continue
		}

		var names []string
		for _, header := range headers {
			if header.Size > opts.MaxSize {
				problems = append(problems, "file "+strconv.Quote(header.Filename)+" exceeds the size limit")
				continue
			}
			if !allowedType(opts, header.Header.Get("Content-Type")) {
				problems = append(problems, "file "+strconv.Quote(header.Filename)+" has a disallowed content type")
				continue
			}
			name, err := SanitizeFilename(header.Filename)
			if err != nil {
				return nil, nil, err
			}
			names = append(names, name)
			uploads = append(uploads, Upload{Field: key, SanitizedName: name, Header: header})
		}

		if opts.Multiple() {
			data[key] = names
		} else if len(names) > 0 {
			data[key] = names[0]
		}
	}

	if len(problems) > 0 {
		return nil, nil, apperrors.Validation("%s", strings.Join(problems, "; "))
	}
	return data, uploads, nil
}

// allowedType checks the content type against the field's MIME patterns.
// No patterns means any type is accepted.
func allowedType(opts schema.FileOptions, contentType string) bool {
	if len(opts.AllowedTypes) == 0 {
		return true
	}
	for _, pattern := range opts.AllowedTypes {
		if MatchMIME(pattern, contentType) {
			return true
		}
	}
	return false
}

// coerceFormValue converts a form string into the typed value the
// record service expects for the field.
func coerceFormValue(f *models.Field, raw string) (any, error) {
	switch f.Type {
	case models.FieldTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperrors.Validation("field %q must be a number", f.Name)
		}
		return n, nil
	case models.FieldTypeBool:
		switch raw {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, apperrors.Validation("field %q must be a boolean", f.Name)
	case models.FieldTypeJSON:
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, apperrors.Validation("field %q must be valid JSON", f.Name)
		}
		return decoded, nil
	default:
		return raw, nil
	}
}
