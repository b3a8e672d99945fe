package xltpl

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // substitution will misbehave or fail
	SeverityWarning                 // the placeholder is probably not what the author meant
)

// ValidationIssue is a single problem found in a template.
type ValidationIssue struct {
	Severity Severity
	Sheet    string
	Cell     string
	Message  string
}

// String formats the issue as "[ERROR] Sheet1!A2: message" or "[WARN] ...".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	where := v.Sheet
	if v.Cell != "" {
		where += "!" + v.Cell
	}
	return fmt.Sprintf("[%s] %s: %s", sev, where, v.Message)
}

// Validate checks a template's placeholders without data. A non-nil error
// means the template could not be opened at all.
func Validate(templatePath string, opts ...Option) ([]ValidationIssue, error) {
	wb, err := OpenFile(templatePath, opts...)
	if err != nil {
		return nil, err
	}
	return wb.Validate()
}

// Validate performs static checks on every placeholder of the workbook.
func (wb *Workbook) Validate() ([]ValidationIssue, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	var issues []ValidationIssue
	for _, info := range wb.sheets {
		sh, err := wb.loadSheet(info)
		if err != nil {
			return nil, &SubstitutionError{Sheet: info.Name, Err: err}
		}
		sh.scanTexts(func(cell, location, text string) {
			if !strings.Contains(text, "${") {
				return
			}
			if msg := checkBalanced(text); msg != "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, Sheet: info.Name, Cell: cell, Message: msg})
			}
			for _, p := range ExtractPlaceholders(text) {
				issues = append(issues, checkPlacement(Placement{
					Sheet: info.Name, Cell: cell, Location: location, Text: text, Placeholder: p,
				})...)
			}
		})
	}
	return issues, nil
}

func checkPlacement(p Placement) []ValidationIssue {
	var issues []ValidationIssue
	issue := func(sev Severity, format string, args ...any) {
		issues = append(issues, ValidationIssue{
			Severity: sev,
			Sheet:    p.Sheet,
			Cell:     p.Cell,
			Message:  fmt.Sprintf("%s: ", p.Placeholder.Placeholder) + fmt.Sprintf(format, args...),
		})
	}

	switch p.Type {
	case TypeNormal, TypeTable, TypeImage:
	default:
		issue(SeverityWarning, "unknown placeholder type %q is treated as a plain value", p.Type)
	}
	if p.Type == TypeTable && p.Key == "" {
		issue(SeverityWarning, "table placeholder has no key; elements are written as they are")
	}
	if (p.Type == TypeTable || p.IsImage()) && !p.Full && p.Location == "cell" {
		issue(SeverityWarning, "%s placeholder shares its cell with other text and is substituted as text", placeholderKind(p.Placeholder))
	}
	for _, path := range []string{p.Name, p.Key} {
		if path == "" {
			continue
		}
		if msg := compileCheck(path); msg != "" {
			issue(SeverityError, "%s", msg)
		}
	}
	return issues
}

func placeholderKind(p Placeholder) string {
	if p.Type == TypeTable {
		return "table"
	}
	return "image"
}

// compileCheck reports data paths that cannot be resolved as dotted paths.
// Names that fail the path grammar only resolve through an exact top-level key.
func compileCheck(path string) string {
	if ValidPath(path) {
		if _, err := expr.Compile(path, expr.AllowUndefinedVariables()); err != nil {
			return fmt.Sprintf("invalid data path %q: %v", path, err)
		}
		return ""
	}
	if strings.ContainsAny(path, "${}") {
		return fmt.Sprintf("invalid data path %q", path)
	}
	return ""
}

// checkBalanced reports "${" markers left without a closing brace.
func checkBalanced(text string) string {
	open := strings.Count(text, "${")
	matched := len(placeholderRe.FindAllString(text, -1))
	if open > matched {
		return fmt.Sprintf("unbalanced placeholder marker in %q", text)
	}
	return ""
}
