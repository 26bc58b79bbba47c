// Package relevance scores detected changes with a cheap, deterministic
// heuristic. It is an explainable filter, not a semantic diff.
package relevance

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// Scoring constants.
const (
	MaxDeltaScore      = 50
	KeywordHitScore    = 15
	HighPriorityWeight = 20
	MedPriorityWeight  = 10
	MaxScore           = 100
	HighRiskThreshold  = 70
	RelevantThreshold  = 40
)

// Score rates how significant the change from previous to current content is
// for target.
func Score(target monitor.Target, previous, current string) monitor.RelevanceResult {
	delta := utf8.RuneCountInString(current) - utf8.RuneCountInString(previous)
	if delta < 0 {
		delta = -delta
	}
	deltaScore := min(MaxDeltaScore, delta)
	keywordScore := KeywordHitScore * KeywordHits(current, target.Keywords)
	score := min(MaxScore, deltaScore+keywordScore+PriorityWeight(target.Priority))

	return monitor.RelevanceResult{
		Score:      score,
		RiskLevel:  RiskFromScore(score),
		IsRelevant: score >= RelevantThreshold,
	}
}

// KeywordHits counts the keywords that occur, case-insensitively, in content.
// Keywords are matched verbatim, surrounding spaces included; the empty
// keyword never matches.
func KeywordHits(content string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return hits
}

// PriorityWeight maps a target priority to its score bonus.
func PriorityWeight(p monitor.Priority) int {
	switch p {
	case monitor.PriorityHigh:
		return HighPriorityWeight
	case monitor.PriorityMedium:
		return MedPriorityWeight
	default:
		return 0
	}
}

// RiskFromScore buckets a score into a risk level.
func RiskFromScore(score int) monitor.RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return monitor.RiskHigh
	case score >= RelevantThreshold:
		return monitor.RiskMedium
	default:
		return monitor.RiskLow
	}
}
