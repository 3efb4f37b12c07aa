package services

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Notifier delivers a push notification to a device push token
type Notifier interface {
	Send(ctx context.Context, pushToken, title, body string) error
}

// NopNotifier drops every notification
type NopNotifier struct{}

// Send does nothing
func (NopNotifier) Send(ctx context.Context, pushToken, title, body string) error { return nil }

// APNsNotifier sends notifications through Apple Push Notification service
// using token-based authentication
type APNsNotifier struct {
	client *apns2.Client
	topic  string
}

// NewAPNsNotifier loads the .p8 signing key and creates an APNs client
func NewAPNsNotifier(keyPath, keyID, teamID, topic string, production bool) (*APNsNotifier, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsNotifier{client: client, topic: topic}, nil
}

// Send pushes an alert to a single device
func (n *APNsNotifier) Send(ctx context.Context, pushToken, title, body string) error {
	notification := &apns2.Notification{
		DeviceToken: pushToken,
		Topic:       n.topic,
		Payload:     payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default"),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("APNs rejected notification: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
