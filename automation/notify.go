package automation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGridNotifier sends the per-run digest through SendGrid.
type SendGridNotifier struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
	logg      *logrus.Logger
}

func NewSendGridNotifier(logg *logrus.Logger) *SendGridNotifier {
	fromName := strings.TrimSpace(os.Getenv("SENDGRID_FROM_NAME"))
	if fromName == "" {
		fromName = "Review Automation"
	}
	return &SendGridNotifier{
		fromEmail: strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL")),
		fromName:  fromName,
		client:    sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY")),
		logg:      logg,
	}
}

func (n *SendGridNotifier) SendRunDigest(ctx context.Context, email string, businessName string, result *AutomationResult) error {
	if n.fromEmail == "" {
		return fmt.Errorf("SENDGRID_FROM_EMAIL not set")
	}

	subject := fmt.Sprintf("Review automation summary for %s", businessName)
	body := buildDigestBody(businessName, result)

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("", email)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	n.logg.WithFields(logrus.Fields{
		"module":   "automation",
		"to":       email,
		"business": businessName,
	}).Info("run digest sent")
	return nil
}

func buildDigestBody(businessName string, result *AutomationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automation run for %s\n\n", businessName)
	fmt.Fprintf(&b, "Reviews processed: %d\n", result.ProcessedReviews)
	fmt.Fprintf(&b, "Replies drafted:   %d\n", result.GeneratedReplies)
	fmt.Fprintf(&b, "Auto-approved:     %d\n", result.AutoApproved)
	fmt.Fprintf(&b, "Auto-posted:       %d\n", result.AutoPosted)
	if result.Deferred > 0 {
		fmt.Fprintf(&b, "Deferred to next run: %d\n", result.Deferred)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "\n%d review(s) need attention:\n", len(result.Errors))
		for _, stepErr := range result.Errors {
			fmt.Fprintf(&b, "  - review %d (%s): %s\n", stepErr.ReviewId, stepErr.Step, stepErr.Error)
		}
	}
	return b.String()
}

// NoopNotifier is the notifier used when email delivery is not configured.
type NoopNotifier struct{}

func (NoopNotifier) SendRunDigest(ctx context.Context, email string, businessName string, result *AutomationResult) error {
	return nil
}
