package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
)

// Reserved query keys that never act as filters.
var reservedKeys = map[string]bool{
	"page":    true,
	"perPage": true,
	"sort":    true,
	"expand":  true,
}

// filterOps lists the operator sigils longest-first so greedy matching
// picks ">=" over ">".
var filterOps = []string{OpNotLike, OpNotEqual, OpGreaterEqual, OpLessEqual, OpLike, OpGreater, OpLess}

// ParseURL parses the raw query string of a list request into Options.
// Filters use the field[op]=value form where the operator sigil trails
// the field name (views>=10, title~=foo); a bare field=value pair is an
// equality filter. Unknown operators surface as validation errors when
// the options are built against a schema.
//
// The raw string is parsed by hand because the operator sigil sits
// between the field name and the "=" delimiter, which url.ParseQuery
// would fold into the key.
func ParseURL(rawQuery string) (Options, error) {
	opts := Options{}
	if rawQuery == "" {
		return opts, nil
	}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		field, op, rawValue := splitFilterPair(pair)

		key, err := url.QueryUnescape(field)
		if err != nil {
			return opts, apperrors.Validation("malformed query key %q", field)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return opts, apperrors.Validation("malformed query value %q", rawValue)
		}

		if op == OpEqual && reservedKeys[key] {
			if err := applyReserved(&opts, key, value); err != nil {
				return opts, err
			}
			continue
		}

		// Values stay text here; the builder coerces them against the
		// target field's type, which ParseURL does not know.
		opts.Filter = append(opts.Filter, Condition{Field: key, Op: op, Value: value})
	}

	return opts, nil
}

// splitFilterPair breaks one query pair into field, operator and raw
// value. The operator is matched greedily at the first sigil character;
// the optional "=" delimiter after the sigil is consumed.
func splitFilterPair(pair string) (field, op, value string) {
	idx := strings.IndexAny(pair, "!<>~=")
	if idx < 0 {
		return pair, OpEqual, ""
	}

	field = pair[:idx]
	rest := pair[idx:]

	for _, candidate := range filterOps {
		if strings.HasPrefix(rest, candidate) {
			rest = strings.TrimPrefix(rest[len(candidate):], "=")
			return field, candidate, rest
		}
	}

	// Plain equality: field=value.
	return field, OpEqual, strings.TrimPrefix(rest, "=")
}

// applyReserved folds a reserved key into the options.
func applyReserved(opts *Options, key, value string) error {
	switch key {
	case "page":
		n, err := strconv.Atoi(value)
		if err != nil {
			return apperrors.Validation("invalid page %q", value)
		}
		opts.Page = n
	case "perPage":
		n, err := strconv.Atoi(value)
		if err != nil {
			return apperrors.Validation("invalid perPage %q", value)
		}
		opts.PerPage = n
	case "sort":
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key := SortKey{Field: part}
			if strings.HasPrefix(part, "-") {
				key = SortKey{Field: part[1:], Desc: true}
			} else if strings.HasPrefix(part, "+") {
				key = SortKey{Field: part[1:]}
			}
			opts.Sort = append(opts.Sort, key)
		}
	case "expand":
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				opts.Expand = append(opts.Expand, part)
			}
		}
	}
	return nil
}
