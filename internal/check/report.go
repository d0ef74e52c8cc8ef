package check

import "fmt"

// Kind classifies an Issue.
type Kind int

const (
	PipelineImportError Kind = iota
	PipelineCompileError
	BadConfigError
	SchemaViolationError
	DefaultValueWarning
	NoConfigWarning
)

func (k Kind) String() string {
	switch k {
	case PipelineImportError:
		return "PipelineImportError"
	case PipelineCompileError:
		return "PipelineCompileError"
	case BadConfigError:
		return "BadConfigError"
	case SchemaViolationError:
		return "SchemaViolationError"
	case DefaultValueWarning:
		return "DefaultValueWarning"
	case NoConfigWarning:
		return "NoConfigWarning"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsError reports whether issues of this kind fail a check.
func (k Kind) IsError() bool {
	return k < DefaultValueWarning
}

// Issue is one finding. Field is empty for file and pipeline level issues.
type Issue struct {
	Kind    Kind
	Field   string
	Message string
	// Trace holds source snippets for import errors, when available.
	Trace string
	// Value is the default that was applied, for DefaultValueWarning.
	Value any
}

// ConfigOutcome is the result of checking one config file.
type ConfigOutcome struct {
	Name     string
	Path     string
	Errors   []Issue
	Warnings []Issue
}

// OK reports whether the config passed without errors.
func (c ConfigOutcome) OK() bool {
	return len(c.Errors) == 0
}

// Outcome is the result of checking one pipeline. When Error is set the
// pipeline failed to import or compile and Configs is empty.
type Outcome struct {
	Pipeline string
	Error    *Issue
	Configs  []ConfigOutcome
	Warnings []Issue
}

// OK reports whether the pipeline and all its configs passed.
func (o Outcome) OK() bool {
	if o.Error != nil {
		return false
	}
	for _, c := range o.Configs {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Report aggregates the outcomes of a batch in request order.
type Report struct {
	Outcomes []Outcome
}

// PipelineErrors maps pipeline names to their import or compile failure.
func (r *Report) PipelineErrors() map[string]Issue {
	out := map[string]Issue{}
	for _, o := range r.Outcomes {
		if o.Error != nil {
			out[o.Pipeline] = *o.Error
		}
	}
	return out
}

// ConfigErrors maps pipeline names to config names to their errors. Passing
// configs are omitted.
func (r *Report) ConfigErrors() map[string]map[string][]Issue {
	return r.collect(func(c ConfigOutcome) []Issue { return c.Errors })
}

// DefaultWarnings maps pipeline names to config names to the fields that
// fell back to their default value.
func (r *Report) DefaultWarnings() map[string]map[string][]Issue {
	return r.collect(func(c ConfigOutcome) []Issue { return c.Warnings })
}

func (r *Report) collect(pick func(ConfigOutcome) []Issue) map[string]map[string][]Issue {
	out := map[string]map[string][]Issue{}
	for _, o := range r.Outcomes {
		for _, c := range o.Configs {
			issues := pick(c)
			if len(issues) == 0 {
				continue
			}
			if out[o.Pipeline] == nil {
				out[o.Pipeline] = map[string][]Issue{}
			}
			out[o.Pipeline][c.Name] = issues
		}
	}
	return out
}

// HasErrors reports whether any pipeline or config failed.
func (r *Report) HasErrors() bool {
	for _, o := range r.Outcomes {
		if !o.OK() {
			return true
		}
	}
	return false
}

// Status is the rendered state of a row.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

// Glyph returns the status symbol shown in the results table.
func (s Status) Glyph() string {
	switch s {
	case StatusWarn:
		return "⚠️"
	case StatusFail:
		return "❌"
	default:
		return "✅"
	}
}

func (s Status) String() string {
	switch s {
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "pass"
	}
}

// Row is one line of the results table.
type Row struct {
	Status               Status
	Pipeline             string
	PipelineErrorMessage string
	ConfigFile           string
	Attribute            string
	ConfigErrorType      string
	ConfigErrorMessage   string
}

// Rows flattens the report for tabular rendering. Every pipeline and every
// config file appears at least once; a config with several issues gets one
// row per issue. Warnings are included only when withWarnings is set.
func (r *Report) Rows(withWarnings bool) []Row {
	var rows []Row
	for _, o := range r.Outcomes {
		if o.Error != nil {
			rows = append(rows, Row{
				Status:               StatusFail,
				Pipeline:             o.Pipeline,
				PipelineErrorMessage: o.Error.Message,
			})
			continue
		}
		if len(o.Configs) == 0 {
			row := Row{Status: StatusPass, Pipeline: o.Pipeline}
			for _, w := range o.Warnings {
				row.Status = StatusWarn
				row.ConfigErrorType = w.Kind.String()
				row.ConfigErrorMessage = w.Message
			}
			rows = append(rows, row)
			continue
		}
		for _, c := range o.Configs {
			rows = append(rows, configRows(o.Pipeline, c, withWarnings)...)
		}
	}
	return rows
}

func configRows(pipelineName string, c ConfigOutcome, withWarnings bool) []Row {
	var rows []Row
	for _, e := range c.Errors {
		rows = append(rows, Row{
			Status:             StatusFail,
			Pipeline:           pipelineName,
			ConfigFile:         c.Name,
			Attribute:          e.Field,
			ConfigErrorType:    e.Kind.String(),
			ConfigErrorMessage: e.Message,
		})
	}
	if withWarnings {
		for _, w := range c.Warnings {
			rows = append(rows, Row{
				Status:             StatusWarn,
				Pipeline:           pipelineName,
				ConfigFile:         c.Name,
				Attribute:          w.Field,
				ConfigErrorType:    w.Kind.String(),
				ConfigErrorMessage: w.Message,
			})
		}
	}
	if len(rows) == 0 {
		rows = append(rows, Row{Status: StatusPass, Pipeline: pipelineName, ConfigFile: c.Name})
	}
	return rows
}
