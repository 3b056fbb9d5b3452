/*
Package notify implements the external collaborator contracts on top of the
notification store and structured logging.

PURPOSE:
  The review and publication services talk to ConversationStarter and Mailer
  interfaces. This package provides the default implementations: review
  conversations are persisted as notifications to the employee, and mail is
  logged (a real SMTP sender slots in behind the same interface).

FAILURE MODEL:
  Both collaborators are fire-and-forget from the caller's point of view.
  Errors here never roll back the domain transaction that triggered them.
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Conversations opens review threads by writing a notification to the
// employee. Now the thread lives in the same inbox as deadline messages.
type Conversations struct {
	Store  travel.Store
	Logger *zap.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewConversations(store travel.Store, logger *zap.Logger) *Conversations {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversations{Store: store, Logger: logger, Now: time.Now}
}

// Start records the reviewer's note as a notification for the employee.
func (c *Conversations) Start(ctx context.Context, actor, employee travel.UserID, trip travel.TripID, note string) error {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	n := travel.Notification{
		ID:        uuid.NewString(),
		Type:      travel.NotifTripReviewed,
		Message:   fmt.Sprintf("Your trip was reviewed with remarks: %s", note),
		UserID:    employee,
		CreatedAt: now,
	}
	if err := c.Store.InsertNotification(ctx, n); err != nil {
		c.Logger.Warn("failed to open review conversation",
			zap.String("trip_id", string(trip)),
			zap.String("employee_user", string(employee)),
			zap.Error(err))
		return err
	}
	c.Logger.Info("review conversation opened",
		zap.String("trip_id", string(trip)),
		zap.String("actor_user", string(actor)),
		zap.String("employee_user", string(employee)))
	return nil
}

// =============================================================================
// MAIL
// =============================================================================

// LogMailer logs outgoing mail instead of sending it. Useful in development
// and as the default when no SMTP relay is configured.
type LogMailer struct {
	Logger *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, recipient, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail (not sent, log sink)",
		zap.String("to", recipient),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}
