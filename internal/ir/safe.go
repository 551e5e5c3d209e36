package ir

import (
	"regexp"
	"unicode"
)

// Strings that contain otherwise-illegal characters but are always safe to embed.
var legalSpecialStrings = map[string]bool{
	"@rid":   true,
	"@class": true,
	"@this":  true,
	"%":      true,
}

// ReservedMatchKeywords may not be used as variable names: the MATCH backend
// gives them special meaning.
var ReservedMatchKeywords = map[string]bool{
	"$matches":      true,
	"$matched":      true,
	"$paths":        true,
	"$elements":     true,
	"$pathElements": true,
	"$depth":        true,
	"$currentMatch": true,
}

var variableNamePattern = regexp.MustCompile(`^\$[A-Za-z][A-Za-z0-9_]*$`)

// ValidateSafeString checks that value can be embedded verbatim into any
// backend's query text: non-empty, not starting with a digit, and made only of
// ASCII letters, digits and underscores.
func ValidateSafeString(value string) error {
	if value == "" {
		return validationErrorf(CodeUnsafeString, "", "empty strings are not allowed")
	}
	if legalSpecialStrings[value] {
		return nil
	}
	if value[0] >= '0' && value[0] <= '9' {
		return validationErrorf(CodeUnsafeString, "", "string values cannot start with a digit: %q", value)
	}
	for _, r := range value {
		if r > unicode.MaxASCII || !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return validationErrorf(CodeUnsafeString, "", "encountered illegal characters in string: %q", value)
		}
	}
	return nil
}

// ValidateVariableName checks a `$name` query argument reference.
func ValidateVariableName(name string) error {
	if !variableNamePattern.MatchString(name) {
		return validationErrorf(CodeInvalidVariable, "name", "invalid variable name %q", name)
	}
	if ReservedMatchKeywords[name] {
		return validationErrorf(CodeReservedName, "name", "variable name %q is a reserved keyword", name)
	}
	return nil
}

// IsVertexFieldName reports whether a field name names an edge ("out_*" or "in_*").
func IsVertexFieldName(name string) bool {
	return len(name) > 4 && name[:4] == "out_" || len(name) > 3 && name[:3] == "in_"
}
