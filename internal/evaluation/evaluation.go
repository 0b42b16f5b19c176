// Package evaluation defines the per-cluster judgment record, its
// validation rules, JSON export and the aggregate summary.
package evaluation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Acceptability judgments.
const (
	AcceptableYes = "Yes"
	AcceptableNo  = "No"
)

// Precision judgments, candidate relative to baseline.
const (
	PrecisionMore = "More Precise"
	PrecisionLess = "Less Precise"
	PrecisionSame = "Same"
)

// Quality judgments, candidate relative to baseline.
const (
	QualityMore = "More Accurate"
	QualityLess = "Less Accurate"
	QualitySame = "Same"
)

// Prompt improvement judgments, asked only where the baseline label was
// marked unacceptable.
const (
	Improved    = "Improved"
	NotImproved = "Not Improved"
)

// Field names used in ValidationError.
const (
	FieldAcceptability     = "acceptability"
	FieldPrecision         = "precision"
	FieldQuality           = "quality"
	FieldPromptImprovement = "prompt_improvement"
)

// Axis describes one judgment axis: its allowed values in display order
// and the value that demands a justification.
type Axis struct {
	Field         string
	Values        []string
	Disqualifying string
}

// Axes lists every judgment axis in summary order.
var Axes = []Axis{
	{Field: FieldAcceptability, Values: []string{AcceptableYes, AcceptableNo}, Disqualifying: AcceptableNo},
	{Field: FieldPrecision, Values: []string{PrecisionMore, PrecisionLess, PrecisionSame}, Disqualifying: PrecisionLess},
	{Field: FieldQuality, Values: []string{QualityMore, QualityLess, QualitySame}, Disqualifying: QualityLess},
	{Field: FieldPromptImprovement, Values: []string{Improved, NotImproved}, Disqualifying: NotImproved},
}

// Judgment is what an annotator submits for one cluster.
type Judgment struct {
	Acceptability     string `json:"acceptability"`
	Precision         string `json:"precision"`
	Quality           string `json:"quality"`
	PromptImprovement string `json:"prompt_improvement,omitempty"`

	AcceptabilityNote string `json:"acceptability_note,omitempty"`
	PrecisionNote     string `json:"precision_note,omitempty"`
	QualityNote       string `json:"quality_note,omitempty"`
	ImprovementNote   string `json:"improvement_note,omitempty"`
}

// Evaluation is the stored record for one cluster. Writes replace the
// previous record; there is no history.
type Evaluation struct {
	ClusterID string `json:"cluster_id"`
	Annotator string `json:"annotator,omitempty"`
	Judgment
	CreatedAt  time.Time `json:"created_at"`
	BatchIndex int       `json:"batch_index"`
	Revision   uint64    `json:"revision"`
}

// Clone returns a copy that shares nothing with e.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// ValidationError blocks a submission before it reaches the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateOption adjusts validation.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	requireImprovement bool
}

// RequireImprovement makes the prompt-improvement axis mandatory.
func RequireImprovement() ValidateOption {
	return func(o *validateOptions) { o.requireImprovement = true }
}

// Validate checks that every axis carries an allowed value and that each
// disqualifying value has a non-blank justification. All failures are
// joined; errors.As finds the first *ValidationError.
func (j Judgment) Validate(opts ...ValidateOption) error {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error
	for _, axis := range Axes {
		value, note := j.axis(axis.Field)
		if value == "" {
			if axis.Field == FieldPromptImprovement && !o.requireImprovement {
				continue
			}
			errs = append(errs, &ValidationError{Field: axis.Field, Message: "a judgment is required"})
			continue
		}
		if !contains(axis.Values, value) {
			errs = append(errs, &ValidationError{
				Field:   axis.Field,
				Message: fmt.Sprintf("unknown value %q (valid: %s)", value, strings.Join(axis.Values, ", ")),
			})
			continue
		}
		if value == axis.Disqualifying && strings.TrimSpace(note) == "" {
			errs = append(errs, &ValidationError{
				Field:   axis.Field,
				Message: fmt.Sprintf("a justification is required when choosing %q", value),
			})
		}
	}
	return errors.Join(errs...)
}

// Value returns the judgment recorded for an axis field.
func (j Judgment) Value(field string) string {
	v, _ := j.axis(field)
	return v
}

func (j Judgment) axis(field string) (value, note string) {
	switch field {
	case FieldAcceptability:
		return j.Acceptability, j.AcceptabilityNote
	case FieldPrecision:
		return j.Precision, j.PrecisionNote
	case FieldQuality:
		return j.Quality, j.QualityNote
	case FieldPromptImprovement:
		return j.PromptImprovement, j.ImprovementNote
	}
	return "", ""
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
