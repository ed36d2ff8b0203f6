// README: Development sink that writes outgoing messages to the log instead of sending them.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) SendSMS(_ context.Context, to, body string) error {
	s.log.Info("sms (not sent)", zap.String("to", to), zap.String("body", body))
	return nil
}

func (s *LogSink) SendEmail(_ context.Context, to, subject, _ string) error {
	s.log.Info("email (not sent)", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func (s *LogSink) Push(_ context.Context, tokens []string, msg Message) (int, error) {
	s.log.Info("push (not sent)", zap.Int("devices", len(tokens)), zap.String("title", msg.Title))
	return len(tokens), nil
}

func (s *LogSink) PushTopic(_ context.Context, topic string, msg Message) error {
	s.log.Info("topic push (not sent)", zap.String("topic", topic), zap.String("title", msg.Title))
	return nil
}
