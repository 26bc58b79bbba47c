package notify

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// Message is a rendered alert email.
type Message struct {
	Subject string
	Text    string
}

// Render builds the email subject and plain-text body for alert.
func Render(alert monitor.Alert) Message {
	name := alert.Target.DisplayName
	if strings.TrimSpace(name) == "" {
		name = alert.Target.URL
	}
	subject := fmt.Sprintf("[SellerGuard] %s risk change on %s", strings.ToUpper(string(alert.Event.RiskLevel)), name)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Event.Summary)
	fmt.Fprintf(&b, "Page: %s\n", alert.Target.URL)
	fmt.Fprintf(&b, "Risk level: %s (score %d)\n", alert.Event.RiskLevel, alert.Event.RelevanceScore)
	if alert.Event.BusinessImpact != "" {
		fmt.Fprintf(&b, "Business impact: %s\n", alert.Event.BusinessImpact)
	}
	if alert.Event.Recommendation != "" {
		fmt.Fprintf(&b, "Recommendation: %s\n", alert.Event.Recommendation)
	}
	fmt.Fprintf(&b, "\nChange event #%d", alert.Event.ID)
	return Message{Subject: subject, Text: b.String()}
}
