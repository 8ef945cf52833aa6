package notifications

import "context"

// Noop satisfies the notification interface when Firebase is unavailable.
type Noop struct{}

func (n *Noop) SendPushNotification(ctx context.Context, userID string, title, body string, tokens []string, data map[string]string) error {
	return nil
}
