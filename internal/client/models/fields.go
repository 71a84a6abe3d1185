package models

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
)

var ErrIncorrectField = errors.New("field must be name=value")

// identifiers that look numeric ("2101.00001") but are strings
var stringFields = map[string]bool{
	FieldTitle:   true,
	FieldDOI:     true,
	FieldArxivID: true,
	FieldName:    true,
	FieldS3Key:   true,
}

// FieldsFromStrings parses "name=value" arguments into a record. Values are
// typed loosely: integers and floats become numbers, true/false become
// booleans, "null" clears the field, a value wrapped in [] becomes a
// comma-separated list, anything else stays a string. Identifier fields
// and double-quoted values are always kept as strings.
func FieldsFromStrings(args []string) (api.Record, error) {
	rec := api.Record{}
	for _, item := range args {
		name, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, ErrIncorrectField
		}
		name = strings.TrimSpace(name)
		switch {
		case len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`):
			rec[name] = value[1 : len(value)-1]
		case stringFields[name] && value != "null":
			rec[name] = value
		default:
			rec[name] = parseValue(value)
		}
	}
	return rec, nil
}

func parseValue(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		items := []any{}
		if inner == "" {
			return items
		}
		for _, part := range strings.Split(inner, ",") {
			items = append(items, parseValue(strings.TrimSpace(part)))
		}
		return items
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
