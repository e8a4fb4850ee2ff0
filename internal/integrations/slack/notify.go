package slacknotify

import (
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"ticketbot/internal/domain"
)

type messagePoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

var _ messagePoster = (*slack.Client)(nil)

// Notifier posts a message to the triage channel whenever a ticket
// could not be classified. A zero-value Notifier is disabled and all
// methods are no-ops.
type Notifier struct {
	api     messagePoster
	channel string
	logger  *zap.Logger
}

func NewNotifier(botToken, channel string, logger *zap.Logger) *Notifier {
	if botToken == "" || channel == "" {
		logger.Info("triage notifications disabled (slack not configured)")
		return &Notifier{logger: logger}
	}
	return &Notifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.api != nil
}

// NotifyTriage announces a ticket that needs a human look. Failures
// are logged and swallowed, the same as the downstream ticket update.
func (n *Notifier) NotifyTriage(c domain.Classification, subject string) {
	if !n.Enabled() {
		return
	}

	if _, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(triageText(c, subject), false)); err != nil {
		n.logger.Error("triage notification failed",
			zap.String("ticket_id", c.TicketID), zap.Error(err))
		return
	}
	n.logger.Info("triage notification posted", zap.String("ticket_id", c.TicketID))
}

func triageText(c domain.Classification, subject string) string {
	text := fmt.Sprintf(":rotating_light: Ticket %s needs human triage.\n*Subject:* %s", c.TicketID, subject)
	if c.Summary != "" {
		text += fmt.Sprintf("\n*Summary:* %s", c.Summary)
	}
	return text
}
