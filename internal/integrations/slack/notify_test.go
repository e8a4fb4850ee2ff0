package slacknotify

import (
	"errors"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"ticketbot/internal/domain"
)

type fakePoster struct {
	channel string
	texts   []string
	err     error
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channel = channelID
	f.texts = append(f.texts, "posted")
	return "", "", f.err
}

func TestNotifierDisabledWhenUnconfigured(t *testing.T) {
	n := NewNotifier("", "", zap.NewNop())
	if n.Enabled() {
		t.Fatal("expected notifier to be disabled")
	}
	// Must not panic with no API client.
	n.NotifyTriage(domain.Classification{TicketID: "1", Category: domain.CategoryUnknown}, "subject")
}

func TestNotifyTriagePostsToChannel(t *testing.T) {
	poster := &fakePoster{}
	n := &Notifier{api: poster, channel: "C123", logger: zap.NewNop()}

	n.NotifyTriage(domain.Classification{TicketID: "55", Category: domain.CategoryUnknown, Summary: "Odd request."}, "Help")
	if poster.channel != "C123" {
		t.Fatalf("posted to channel %q", poster.channel)
	}
	if len(poster.texts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(poster.texts))
	}
}

func TestNotifyTriageSwallowsErrors(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel_not_found")}
	n := &Notifier{api: poster, channel: "C123", logger: zap.NewNop()}

	// No panic, no return value; the error stays in the logs.
	n.NotifyTriage(domain.Classification{TicketID: "56", Category: domain.CategoryUnknown}, "Help")
}

func TestTriageMessageMentionsTicket(t *testing.T) {
	got := triageText(domain.Classification{TicketID: "77", Summary: "Needs a human."}, "Refund request")
	for _, want := range []string{"77", "Refund request", "Needs a human."} {
		if !strings.Contains(got, want) {
			t.Fatalf("message missing %q: %s", want, got)
		}
	}
}
