// README: Push notifications to rider devices and admin topics through Firebase Cloud Messaging.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type fcmClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMPusher struct {
	client fcmClient
	log    *zap.Logger
}

func NewFCMPusher(client *messaging.Client, log *zap.Logger) *FCMPusher {
	if log == nil {
		log = zap.NewNop()
	}
	return &FCMPusher{client: client, log: log}
}

// FCM caps a multicast at 500 tokens.
const maxMulticast = 500

// Push sends msg to every token and returns how many deliveries succeeded.
func (p *FCMPusher) Push(ctx context.Context, tokens []string, msg Message) (int, error) {
	sent := 0
	for start := 0; start < len(tokens); start += maxMulticast {
		end := start + maxMulticast
		if end > len(tokens) {
			end = len(tokens)
		}
		resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: tokens[start:end],
			Data:   msg.Data,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		})
		if err != nil {
			return sent, fmt.Errorf("fcm multicast: %w", err)
		}
		sent += resp.SuccessCount
		if resp.FailureCount > 0 {
			p.log.Warn("fcm partial failure",
				zap.Int("failed", resp.FailureCount),
				zap.Int("batch", end-start),
			)
		}
	}
	return sent, nil
}

// PushTopic sends msg to every device subscribed to topic.
func (p *FCMPusher) PushTopic(ctx context.Context, topic string, msg Message) error {
	id, err := p.client.Send(ctx, &messaging.Message{
		Topic: topic,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		return fmt.Errorf("fcm topic %s: %w", topic, err)
	}
	p.log.Debug("fcm topic sent", zap.String("topic", topic), zap.String("message_id", id))
	return nil
}
