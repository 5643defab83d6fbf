// Package phone turns a raw phone number into the ordered list of strings a
// CRM search should try.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "US"

// Options controls how variants are built.
type Options struct {
	// OverridingFormats are templates such as "+1**********" or "(***) ***-****".
	// Each '*' takes the next national significant digit.
	OverridingFormats []string
	IsExtension       bool
	DefaultRegion     string
}

// Repair undoes query-string damage where a leading '+' arrived as a space.
func Repair(raw string) string {
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return ""
	}
	if strings.HasPrefix(raw, " ") && !strings.HasPrefix(rest, "+") {
		return "+" + rest
	}
	return rest
}

// Variants returns the distinct query strings for raw, most canonical first.
// Extensions and numbers that do not parse as valid are returned verbatim.
func Variants(raw string, opts Options) []string {
	number := Repair(raw)
	if number == "" {
		return nil
	}
	if opts.IsExtension {
		return []string{number}
	}

	region := opts.DefaultRegion
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(number, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return []string{number}
	}

	variants := []string{phonenumbers.Format(parsed, phonenumbers.E164)}
	national := phonenumbers.GetNationalSignificantNumber(parsed)
	for _, format := range opts.OverridingFormats {
		if formatted, ok := ApplyFormat(format, national); ok {
			variants = append(variants, formatted)
		}
	}

	return dedupe(variants)
}

// ApplyFormat fills each '*' in format with successive digits. It fails when the
// placeholder count differs from the digit count.
func ApplyFormat(format, digits string) (string, bool) {
	format = strings.TrimSpace(format)
	if format == "" || strings.Count(format, "*") != len(digits) {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(format))
	next := 0
	for _, r := range format {
		if r == '*' {
			b.WriteByte(digits[next])
			next++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

// E164 formats raw as E.164 when it is a valid number, else returns it repaired.
func E164(raw, region string) string {
	number := Repair(raw)
	if region == "" {
		region = DefaultRegion
	}
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// SplitFormats parses the comma separated overridingFormat query value.
func SplitFormats(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var formats []string
	for _, f := range strings.Split(value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
