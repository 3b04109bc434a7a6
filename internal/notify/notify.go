// Package notify is the outbound notification gateway. The engine treats it
// as fire-and-forget: delivery failures are logged and never retried within
// the same run, since the next scheduled sweep re-evaluates and re-notifies
// per the reminder-interval rule.
package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/provanto/provanto/internal/database"
)

// Notifier delivers an alert to a recipient
type Notifier interface {
	Notify(recipientID, title, message string, severity database.Severity) error
}

// SeverityEmoji returns the emoji used to prefix alerts of a severity
func SeverityEmoji(severity database.Severity) string {
	switch severity {
	case database.SeverityHigh:
		return ":red_circle:"
	case database.SeverityMedium:
		return ":large_orange_circle:"
	case database.SeverityLow:
		return ":large_yellow_circle:"
	default:
		return ":white_circle:"
	}
}

// SlackNotifier posts conflict alerts to a Slack channel
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a Slack notifier posting to the given channel
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// Notify posts the alert to the configured conflicts channel. The recipient
// is mentioned in the message body since routing to per-user DMs would need
// a directory lookup the engine does not own.
func (n *SlackNotifier) Notify(recipientID, title, message string, severity database.Severity) error {
	text := fmt.Sprintf("%s *%s*\n%s", SeverityEmoji(severity), title, message)
	if recipientID != "" {
		text += fmt.Sprintf("\nAssignee: %s", recipientID)
	}

	_, _, err := n.client.PostMessage(
		n.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", n.channel, err)
	}
	return nil
}

// LogNotifier writes alerts to the process log. Used when Slack is not
// configured so the engine still records what it would have sent.
type LogNotifier struct{}

// Notify logs the alert
func (LogNotifier) Notify(recipientID, title, message string, severity database.Severity) error {
	log.Printf("NOTIFY [%s] to=%s %s: %s", severity, recipientID, title, message)
	return nil
}
