package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier is a reference FailureNotificationService backed by a Slack
// incoming webhook. Source-grounded nowhere in the retrieved pack (no
// example repo imports slack-go/slack directly; kubernaut declares it in
// go.mod but its notification tests exercise a generic webhook-receiver
// fake instead), so this is built directly against slack-go's own public
// API surface: slack.WebhookMessage and slack.PostWebhookContext.
type SlackNotifier struct {
	webhookURL string
	channel    string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier builds a notifier posting to webhookURL. channel
// overrides the webhook's configured default channel when non-empty.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		post:       slack.PostWebhookContext,
	}
}

func severityEmoji(s Severity) string {
	switch s {
	case SeverityCritical:
		return ":rotating_light:"
	case SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// NotifyIfNeeded posts a formatted attachment describing the failed
// execution. Callers that need notifications to never block the dispatcher
// should wrap this in Router.
func (s *SlackNotifier) NotifyIfNeeded(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("%s execution `%s` for schedule `%s` (%s)", severityEmoji(n.Severity), n.ExecutionID, n.ScheduleID, n.ResultCode)

	fields := []slack.AttachmentField{
		{Title: "Task", Value: n.TaskSummary},
	}
	if n.ErrorCode != nil {
		fields = append(fields, slack.AttachmentField{Title: "Error code", Value: *n.ErrorCode, Short: true})
	}
	if n.ErrorMessage != nil {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: *n.ErrorMessage})
	}
	if n.Message != nil {
		fields = append(fields, slack.AttachmentField{Title: "Message", Value: *n.Message})
	}

	msg := &slack.WebhookMessage{
		Channel: s.channel,
		Text:    text,
		Attachments: []slack.Attachment{
			{Color: colorForSeverity(n.Severity), Fields: fields},
		},
	}
	return s.post(ctx, s.webhookURL, msg)
}

func colorForSeverity(s Severity) string {
	switch s {
	case SeverityCritical:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}
