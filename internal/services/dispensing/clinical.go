package dispensing

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
)

// WarningKind classifies a clinical warning.
type WarningKind string

const (
	WarningInteraction WarningKind = "INTERACTION"
	WarningAllergy     WarningKind = "ALLERGY"
	WarningControlled  WarningKind = "CONTROLLED"
)

// ClinicalWarning is one finding from a clinical collaborator.
type ClinicalWarning struct {
	Kind     WarningKind
	Severity config.Severity
	Codes    []string
	Note     string
}

func (w ClinicalWarning) String() string {
	return fmt.Sprintf("%s %s [%s] %s", w.Severity, w.Kind, strings.Join(w.Codes, ", "), w.Note)
}

// InteractionChecker reports drug interactions within one prescription.
type InteractionChecker interface {
	CheckInteractions(ctx context.Context, patientID string, medicines []*models.Medicine) ([]ClinicalWarning, error)
}

// AllergyChecker reports medicines the patient must not receive.
type AllergyChecker interface {
	CheckAllergies(ctx context.Context, patientID string, medicines []*models.Medicine) ([]ClinicalWarning, error)
}

// NoInteractions reports nothing.
type NoInteractions struct{}

func (NoInteractions) CheckInteractions(context.Context, string, []*models.Medicine) ([]ClinicalWarning, error) {
	return nil, nil
}

// NoAllergies reports nothing.
type NoAllergies struct{}

func (NoAllergies) CheckAllergies(context.Context, string, []*models.Medicine) ([]ClinicalWarning, error) {
	return nil, nil
}

// StaticInteractionTable flags configured pairs of medicine codes.
type StaticInteractionTable struct {
	rules []config.InteractionRule
}

// NewStaticInteractionTable creates a checker from configured rules.
func NewStaticInteractionTable(rules []config.InteractionRule) *StaticInteractionTable {
	return &StaticInteractionTable{rules: rules}
}

func (t *StaticInteractionTable) CheckInteractions(_ context.Context, _ string, medicines []*models.Medicine) ([]ClinicalWarning, error) {
	codes := make(map[string]bool, len(medicines))
	for _, m := range medicines {
		codes[strings.ToUpper(m.Code)] = true
	}

	var out []ClinicalWarning
	for _, r := range t.rules {
		a, b := strings.ToUpper(r.A), strings.ToUpper(r.B)
		if codes[a] && codes[b] {
			out = append(out, ClinicalWarning{Kind: WarningInteraction, Severity: r.Severity, Codes: []string{a, b}, Note: r.Note})
		}
	}
	return out, nil
}

// StaticAllergyTable flags medicine categories recorded against a patient.
type StaticAllergyTable struct {
	byPatient map[string][]config.AllergyRule
}

// NewStaticAllergyTable creates a checker from configured rules.
func NewStaticAllergyTable(rules []config.AllergyRule) *StaticAllergyTable {
	t := &StaticAllergyTable{byPatient: make(map[string][]config.AllergyRule)}
	for _, r := range rules {
		t.byPatient[r.PatientID] = append(t.byPatient[r.PatientID], r)
	}
	return t
}

func (t *StaticAllergyTable) CheckAllergies(_ context.Context, patientID string, medicines []*models.Medicine) ([]ClinicalWarning, error) {
	var out []ClinicalWarning
	for _, r := range t.byPatient[patientID] {
		for _, m := range medicines {
			if strings.EqualFold(m.Category, r.Category) {
				out = append(out, ClinicalWarning{
					Kind:     WarningAllergy,
					Severity: r.Severity,
					Codes:    []string{m.Code},
					Note:     fmt.Sprintf("patient allergic to %s", strings.ToLower(r.Category)),
				})
			}
		}
	}
	return out, nil
}

// classify turns warnings into a validation result and notes. Any blocking
// warning fails validation; other warnings require review.
func classify(warnings []ClinicalWarning) (models.ValidationResult, string) {
	if len(warnings) == 0 {
		return models.ValidationPass, ""
	}
	result := models.ValidationNeedsReview
	notes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w.Severity == config.SeverityBlock {
			result = models.ValidationFail
		}
		notes = append(notes, w.String())
	}
	return result, strings.Join(notes, "; ")
}
