package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Notifier delivers an alert to its recipient.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier only writes the alert to the log. It stands in for the email
// channel, which has no transport.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.WarnContext(ctx, "sending error alert", "recipient", a.Recipient, "message", a.Message)
	return nil
}

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NSQNotifier publishes alerts as JSON so a mail relay can pick them up.
type NSQNotifier struct {
	pub   Publisher
	topic string
}

func NewNSQNotifier(pub Publisher, topic string) *NSQNotifier {
	return &NSQNotifier{pub: pub, topic: topic}
}

func (n *NSQNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.pub.Publish(n.topic, body); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}
