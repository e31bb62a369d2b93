package service

import (
	"context"
	"log/slog"
	"time"
)

// Notifier receives security events worth telling the account holder about.
// Calls are fire-and-forget from the login path; implementations must not
// block on delivery.
type Notifier interface {
	AccountLocked(ctx context.Context, email string, until time.Time, requiresAdminUnlock bool)
}

// LogNotifier is the default Notifier: it records the event in the service
// log. Deployments wire a mail-backed implementation in its place.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) AccountLocked(ctx context.Context, email string, until time.Time, requiresAdminUnlock bool) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "account locked",
		slog.String("email", email),
		slog.Time("until", until),
		slog.Bool("requires_admin_unlock", requiresAdminUnlock),
	)
}
