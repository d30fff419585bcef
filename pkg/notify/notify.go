// Package notify is the boundary to the notification delivery collaborator.
// The core fires and forgets; delivery retries are the collaborator's problem.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notification kinds emitted by the core.
const (
	KindStepAssigned     = "step_assigned"
	KindSLAWarning       = "sla_warning"
	KindEscalation       = "escalation"
	KindRequestSubmitted = "request_submitted"
	KindRequestFinished  = "request_finished"
)

// Notifier delivers a message to a user or to every holder of a role
// (userID carries either, the collaborator resolves roles).
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, message, link string) error
}

// LogNotifier writes notifications to the log. Used in development and as a
// safe default when no delivery collaborator is wired.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, userID, kind, title, message, link string) error {
	n.Logger.WithFields(logrus.Fields{
		"user":  userID,
		"kind":  kind,
		"title": title,
		"link":  link,
	}).Info(message)
	return nil
}
