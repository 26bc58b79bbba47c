package summary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	got := Summarize(
		monitor.Target{DisplayName: "Fees", URL: "https://example.com/fees"},
		monitor.RelevanceResult{Score: 72, RiskLevel: monitor.RiskHigh, IsRelevant: true},
	)
	require.Equal(t, "Detected content change on Fees", got.Summary)
	require.Equal(t, "Risk level high with score 72.", got.BusinessImpact)
	require.NotEmpty(t, got.Recommendation)
}

func TestSummarize_FallsBackToURL(t *testing.T) {
	t.Parallel()

	got := Summarize(monitor.Target{URL: "https://example.com/fees"}, monitor.RelevanceResult{})
	require.Equal(t, "Detected content change on https://example.com/fees", got.Summary)
}
