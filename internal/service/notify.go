package service

import "context"

// UserNotifier pushes a real-time event to one user's sockets. Delivery is
// best-effort: offline users simply miss it.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID uint, eventType string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) NotifyUser(context.Context, uint, string, any) {}

func notifierOrNoop(n UserNotifier) UserNotifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
