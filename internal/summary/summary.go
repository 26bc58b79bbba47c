// Package summary renders the human readable text attached to change events.
package summary

import (
	"fmt"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

const defaultRecommendation = "Review updated policy section and confirm operational impact."

// Summarize produces summary, impact and recommendation text for a relevant
// change on target.
func Summarize(target monitor.Target, relevance monitor.RelevanceResult) monitor.ChangeSummary {
	name := target.DisplayName
	if name == "" {
		name = target.URL
	}
	return monitor.ChangeSummary{
		Summary:        fmt.Sprintf("Detected content change on %s", name),
		BusinessImpact: fmt.Sprintf("Risk level %s with score %d.", relevance.RiskLevel, relevance.Score),
		Recommendation: defaultRecommendation,
	}
}
