package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Values substituted into a path template.
//
// Recognized placeholders:
//
//	%user   name of the speaker being recorded
//	%host   host name of the server the recording was made on
//	%date   start date of the recording, YYYY-MM-DD
//	%time   start time of the recording, hh-mm-ss
//	%year %month %day %hour %min %sec   individual start time components
type TemplateVars struct {
	UserName  string
	Host      string
	StartTime time.Time
}

type templateVariable struct {
	name  string
	value string
}

func (v TemplateVars) variables() []templateVariable {
	t := v.StartTime
	return []templateVariable{
		{"user", v.UserName},
		{"host", v.Host},
		{"date", t.Format("2006-01-02")},
		{"time", t.Format("15-04-05")},
		{"year", t.Format("2006")},
		{"month", t.Format("01")},
		{"day", t.Format("02")},
		{"hour", t.Format("15")},
		{"min", t.Format("04")},
		{"sec", t.Format("05")},
	}
}

// Characters never allowed in a single path component on any supported platform.
const invalidComponentCharacters = `/\:*?"<>|`

// Replace characters that are invalid in a file or directory name.
// The result is never empty and never "." or "..".
func SanitizeComponent(component string) string {
	var b strings.Builder
	b.Grow(len(component))
	for _, r := range component {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(invalidComponentCharacters, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	// Windows silently drops trailing dots and spaces.
	sanitized := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if sanitized == "" {
		return "_"
	}
	return sanitized
}

// Expand the placeholders of a path template and return the absolute, sanitized path.
//
// The template is split on '/', each component expanded and sanitized, then reassembled.
// Literal "." and ".." components, a leading "~" and a leading volume name are kept as is.
// The same template and vars always produce the same path.
func ExpandTemplate(template string, vars TemplateVars) (string, error) {
	variables := vars.variables()
	components := strings.Split(filepath.ToSlash(template), "/")

	expanded := make([]string, 0, len(components))
	for i, component := range components {
		switch {
		case component == "":
			// Keep the root of an absolute template, collapse repeated separators.
			if i == 0 {
				expanded = append(expanded, "")
			}
			continue
		case component == "." || component == "..":
			expanded = append(expanded, component)
			continue
		case i == 0 && component == "~":
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			expanded = append(expanded, filepath.ToSlash(home))
			continue
		case i == 0 && filepath.VolumeName(component) == component:
			expanded = append(expanded, component)
			continue
		}
		expanded = append(expanded, SanitizeComponent(expandComponent(component, variables)))
	}

	path := strings.Join(expanded, "/")
	if path == "" {
		path = "_"
	}
	return filepath.Abs(filepath.FromSlash(path))
}

// Substitute all %name placeholders in one path component.
func expandComponent(component string, variables []templateVariable) string {
	var b strings.Builder
	for i := 0; i < len(component); i++ {
		if component[i] == '%' {
			if v, ok := matchVariable(component[i+1:], variables); ok {
				b.WriteString(v.value)
				i += len(v.name)
				continue
			}
		}
		b.WriteByte(component[i])
	}
	return b.String()
}

func matchVariable(s string, variables []templateVariable) (templateVariable, bool) {
	for _, v := range variables {
		if strings.HasPrefix(s, v.name) {
			return v, true
		}
	}
	return templateVariable{}, false
}
