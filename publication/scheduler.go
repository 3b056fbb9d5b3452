/*
scheduler.go - Publication schedule driver

PURPOSE:
  Decides when a company's reviewed data gets released and runs the release.
  Publication is lazy: EnsureUpToDate is called from read paths and from a
  background sweep, and only acts when the company's next release time has
  arrived (or a release was forced).

SCHEDULE FIELDS (on Company, mutated only here):
  NextReleaseAt    - when the next cycle is due
  LastReleaseAt    - when the previous cycle ran
  ForceRelease     - publish at the next EnsureUpToDate regardless of time
  ManualReleaseAt  - one-shot override for the next deadline, consumed on use

CONCURRENCY:
  A per-company mutex serializes EnsureUpToDate callers in-process; the store
  transaction makes the cycle atomic against the database.
*/
package publication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// SCHEDULER
// =============================================================================

type Scheduler struct {
	Store  travel.TxStore
	Writer *SnapshotWriter
	Logger *zap.Logger

	// Mail, when set, receives a release confirmation after each cycle.
	// Fire-and-forget: a send failure never rolls a cycle back.
	Mail travel.Mailer

	// Now is the clock, overridable in tests.
	Now func() time.Time

	mu    sync.Mutex
	locks map[travel.CompanyID]*sync.Mutex
}

func NewScheduler(store travel.TxStore, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Store:  store,
		Writer: NewSnapshotWriter(),
		Logger: logger,
		Now:    time.Now,
		locks:  make(map[travel.CompanyID]*sync.Mutex),
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) lockFor(id travel.CompanyID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[travel.CompanyID]*sync.Mutex)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// =============================================================================
// ENSURE UP TO DATE - the sole mutation entry for schedule fields
// =============================================================================

// EnsureUpToDate runs a publication cycle for the company if one is due.
// Returns true when a cycle actually ran. A company with no schedule yet is
// bootstrapped (first deadline set) without publishing anything.
func (s *Scheduler) EnsureUpToDate(ctx context.Context, id travel.CompanyID) (bool, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	published := false
	var companyName string
	var companyUser travel.UserID
	var frozen int

	err := s.Store.WithTx(ctx, func(st travel.Store) error {
		company, err := st.GetCompany(ctx, id)
		if err != nil {
			return err
		}
		if company == nil {
			return fmt.Errorf("company %s: %w", id, travel.ErrNotFound)
		}

		// Bootstrap: no deadline yet means nothing reviewed has ever been
		// held back. Set the first deadline and publish nothing, unless a
		// release was explicitly forced.
		if company.NextReleaseAt == nil && !company.ForceRelease {
			next := s.nextDeadline(company, now)
			company.NextReleaseAt = &next
			if err := st.SaveCompanySchedule(ctx, company); err != nil {
				return err
			}
			return s.syncDeadlineNotification(ctx, st, company, now)
		}

		due := company.ForceRelease ||
			(company.NextReleaseAt != nil && !now.Before(*company.NextReleaseAt))
		if !due {
			return nil
		}

		n, err := s.Writer.WriteBatch(ctx, st, id, now)
		if err != nil {
			return err
		}
		frozen = n
		companyName = company.Name
		companyUser = company.UserID

		released := now
		next := s.nextDeadline(company, now)
		company.LastReleaseAt = &released
		company.NextReleaseAt = &next
		company.HasPendingReviewChanges = false
		company.ForceRelease = false
		company.ManualReleaseAt = nil // consumed, one cycle only
		if err := st.SaveCompanySchedule(ctx, company); err != nil {
			return err
		}
		if err := s.syncDeadlineNotification(ctx, st, company, now); err != nil {
			return err
		}

		published = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if published {
		s.Logger.Info("publication cycle completed",
			zap.String("company_id", string(id)),
			zap.Int("trips_frozen", frozen),
			zap.Time("at", now))
		if s.Mail != nil {
			subject := fmt.Sprintf("Review data for %s was published", companyName)
			body := fmt.Sprintf("%d trip(s) were frozen on %s.", frozen, now.Format("2006-01-02 15:04"))
			if err := s.Mail.Send(ctx, string(companyUser), subject, body); err != nil {
				s.Logger.Warn("release confirmation mail failed",
					zap.String("company_id", string(id)),
					zap.Error(err))
			}
		}
	}
	return published, nil
}

// nextDeadline picks the next release time: a pending manual override wins,
// otherwise now plus the company's periodicity delta.
func (s *Scheduler) nextDeadline(c *travel.Company, now time.Time) time.Time {
	if c.ManualReleaseAt != nil && c.ManualReleaseAt.After(now) {
		return *c.ManualReleaseAt
	}
	return now.Add(c.Periodicity.Delta())
}

// =============================================================================
// MANUAL CONTROLS
// =============================================================================

// PublishNow forces an immediate publication cycle.
func (s *Scheduler) PublishNow(ctx context.Context, id travel.CompanyID, actor travel.Role) (bool, error) {
	if actor != nil && !actor.CanSeeCompany(id) {
		return false, fmt.Errorf("publishing company %s: %w", id, travel.ErrUnauthorized)
	}

	err := s.Store.WithTx(ctx, func(st travel.Store) error {
		company, err := st.GetCompany(ctx, id)
		if err != nil {
			return err
		}
		if company == nil {
			return fmt.Errorf("company %s: %w", id, travel.ErrNotFound)
		}
		company.ForceRelease = true
		return st.SaveCompanySchedule(ctx, company)
	})
	if err != nil {
		return false, err
	}
	return s.EnsureUpToDate(ctx, id)
}

// SetSchedule updates the company's periodicity and, optionally, a one-shot
// manual deadline for the next cycle. The deadline notification for the
// company's user is replaced in place, never duplicated.
func (s *Scheduler) SetSchedule(ctx context.Context, id travel.CompanyID, p travel.Periodicity, manualNext *time.Time, actor travel.Role) error {
	if actor != nil && !actor.CanSeeCompany(id) {
		return fmt.Errorf("scheduling company %s: %w", id, travel.ErrUnauthorized)
	}
	if !p.Valid() {
		return fmt.Errorf("periodicity %q: %w", p, travel.ErrValidation)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	return s.Store.WithTx(ctx, func(st travel.Store) error {
		company, err := st.GetCompany(ctx, id)
		if err != nil {
			return err
		}
		if company == nil {
			return fmt.Errorf("company %s: %w", id, travel.ErrNotFound)
		}

		company.Periodicity = p
		if manualNext != nil {
			if manualNext.Before(now) {
				return fmt.Errorf("manual release time %s is in the past: %w",
					manualNext.Format(time.RFC3339), travel.ErrValidation)
			}
			m := *manualNext
			company.ManualReleaseAt = &m
			company.NextReleaseAt = &m
		} else if company.NextReleaseAt != nil {
			// Re-derive the running deadline from the new periodicity,
			// anchored on the last release (or now when none happened yet).
			anchor := now
			if company.LastReleaseAt != nil {
				anchor = *company.LastReleaseAt
			}
			next := anchor.Add(p.Delta())
			if next.Before(now) {
				next = now.Add(p.Delta())
			}
			company.NextReleaseAt = &next
		}

		if err := st.SaveCompanySchedule(ctx, company); err != nil {
			return err
		}

		if company.NextReleaseAt != nil {
			return s.syncDeadlineNotification(ctx, st, company, now)
		}
		return nil
	})
}

// syncDeadlineNotification upserts the deadline-changed notification: an
// unread one of the same type is rewritten, otherwise a fresh one is created.
func (s *Scheduler) syncDeadlineNotification(ctx context.Context, st travel.Store, c *travel.Company, now time.Time) error {
	msg := fmt.Sprintf("The review deadline for %s is now %s.",
		c.Name, c.NextReleaseAt.Format("2006-01-02 15:04"))

	existing, err := st.FindUnreadNotification(ctx, c.UserID, travel.NotifReviewDeadlineChanged)
	if err != nil {
		return err
	}
	if existing != nil {
		return st.UpdateNotificationMessage(ctx, existing.ID, msg, now)
	}
	return st.InsertNotification(ctx, travel.Notification{
		ID:        uuid.NewString(),
		Type:      travel.NotifReviewDeadlineChanged,
		Message:   msg,
		UserID:    c.UserID,
		CreatedAt: now,
	})
}

// =============================================================================
// SWEEP
// =============================================================================

// SweepAll runs EnsureUpToDate across every company. Used by the background
// sweeper; per-company failures are logged and do not stop the sweep.
func (s *Scheduler) SweepAll(ctx context.Context) (int, error) {
	companies, err := s.Store.ListCompanies(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, c := range companies {
		ran, err := s.EnsureUpToDate(ctx, c.ID)
		if err != nil {
			s.Logger.Warn("publication sweep failed for company",
				zap.String("company_id", string(c.ID)),
				zap.Error(err))
			continue
		}
		if ran {
			published++
		}
	}
	return published, nil
}
