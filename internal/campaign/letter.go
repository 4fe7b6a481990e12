package campaign

import (
	"fmt"
	"strings"
)

// Placeholders recognised in cover letter templates.
const (
	PlaceholderCompany = "company_name"
	PlaceholderVacancy = "vacancy_name"
)

// TemplateError reports a cover letter template that cannot be rendered.
type TemplateError struct {
	Pos         int
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("cover letter template: %s {%s} at offset %d", e.Reason, e.Placeholder, e.Pos)
	}
	return fmt.Sprintf("cover letter template: %s at offset %d", e.Reason, e.Pos)
}

// RenderLetter substitutes {company_name} and {vacancy_name}, turns literal
// "\n" sequences into newlines and trims the result. "{{" and "}}" produce
// literal braces.
func RenderLetter(tmpl, companyName, vacancyName string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + len(companyName) + len(vacancyName))

	for i := 0; i < len(tmpl); {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", &TemplateError{Pos: i, Reason: "unclosed '{'"}
			}
			name := tmpl[i+1 : i+1+end]
			switch name {
			case PlaceholderCompany:
				b.WriteString(companyName)
			case PlaceholderVacancy:
				b.WriteString(vacancyName)
			default:
				return "", &TemplateError{Pos: i, Placeholder: name, Reason: "unknown placeholder"}
			}
			i += end + 2
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", &TemplateError{Pos: i, Reason: "single '}'"}
		default:
			b.WriteByte(tmpl[i])
			i++
		}
	}

	return strings.TrimSpace(strings.ReplaceAll(b.String(), `\n`, "\n")), nil
}

// ValidateTemplate checks a template without rendering real values.
func ValidateTemplate(tmpl string) error {
	_, err := RenderLetter(tmpl, "", "")
	return err
}
