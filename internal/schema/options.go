package schema

import (
	"fmt"

	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultMaxFiles is the file count limit when the option is unset.
	DefaultMaxFiles = 1

	// DefaultMaxSize is the per-file size limit when unset (10 MiB).
	DefaultMaxSize = 10 << 20
)

// RelationOptions is the decoded options bag of a relation field.
type RelationOptions struct {
	Target string `mapstructure:"target"`
}

// FileOptions is the decoded options bag of a file field.
type FileOptions struct {
	MaxFiles     int      `mapstructure:"maxFiles"`
	MaxSize      int64    `mapstructure:"maxSize"`
	AllowedTypes []string `mapstructure:"allowedTypes"`
}

// Multiple reports whether the field stores a filename array instead of
// a single filename.
func (o FileOptions) Multiple() bool {
	return o.MaxFiles > 1
}

// DecodeRelationOptions decodes a relation field's options bag.
func DecodeRelationOptions(raw models.OptionsMap) (RelationOptions, error) {
	var opts RelationOptions
	if err := mapstructure.Decode(map[string]any(raw), &opts); err != nil {
		return opts, fmt.Errorf("decode relation options: %w", err)
	}
	return opts, nil
}

// DecodeFileOptions decodes a file field's options bag, applying the
// documented defaults.
func DecodeFileOptions(raw models.OptionsMap) (FileOptions, error) {
	var opts FileOptions
	cfg := &mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true, // JSON numbers arrive as float64
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return opts, fmt.Errorf("build options decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return opts, fmt.Errorf("decode file options: %w", err)
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return opts, nil
}
