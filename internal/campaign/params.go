package campaign

import (
	"fmt"
	"strings"
)

// Param names a campaign input the user has to provide.
type Param string

const (
	ParamResume      Param = "resume_id"
	ParamKeywords    Param = "keywords"
	ParamCoverLetter Param = "cover_letter_template"
)

// Params is the snapshot of user settings a run works from.
type Params struct {
	ResumeID            string
	Keywords            string
	CoverLetterTemplate string
}

// Missing lists the unset parameters in display order.
func (p Params) Missing() []Param {
	var out []Param
	if strings.TrimSpace(p.ResumeID) == "" {
		out = append(out, ParamResume)
	}
	if strings.TrimSpace(p.Keywords) == "" {
		out = append(out, ParamKeywords)
	}
	if strings.TrimSpace(p.CoverLetterTemplate) == "" {
		out = append(out, ParamCoverLetter)
	}
	return out
}

// Validate returns a *MissingParamsError for unset parameters, or the
// *TemplateError of a cover letter template that cannot be rendered.
func (p Params) Validate() error {
	if missing := p.Missing(); len(missing) > 0 {
		return &MissingParamsError{Missing: missing}
	}
	return ValidateTemplate(p.CoverLetterTemplate)
}

type MissingParamsError struct {
	Missing []Param
}

func (e *MissingParamsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return fmt.Sprintf("campaign: missing parameters: %s", strings.Join(names, ", "))
}
