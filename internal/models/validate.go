package models

import (
	"fmt"
	"strings"
)

// ValidationError reports which required report fields were missing or empty.
type ValidationError struct {
	MissingFields []string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("report is missing required fields: %s", strings.Join(e.MissingFields, ", "))
}

// ValidateReportShape checks the minimal discriminator for "is this a report":
// a non-empty executiveSummary and a marketAnalysis object. This is the rule
// shared by the generator and the chat reply classifier.
func ValidateReportShape(report *ResearchReport) error {
	var missing []string
	if report == nil || strings.TrimSpace(report.ExecutiveSummary) == "" {
		missing = append(missing, "executiveSummary")
	}
	if report == nil || report.MarketAnalysis == nil {
		missing = append(missing, "marketAnalysis")
	}
	if len(missing) > 0 {
		return ValidationError{MissingFields: missing}
	}
	return nil
}

// ValidateGeneratedReport applies the generation-time rule on top of the
// minimal shape: the dataInsights key must be present, though it may be empty.
func ValidateGeneratedReport(report *ResearchReport) error {
	err := ValidateReportShape(report)
	if report != nil && report.DataInsights == nil {
		if verr, ok := err.(ValidationError); ok {
			verr.MissingFields = append(verr.MissingFields, "dataInsights")
			return verr
		}
		return ValidationError{MissingFields: []string{"dataInsights"}}
	}
	return err
}
