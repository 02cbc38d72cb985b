package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/logger"
)

type Thresholds struct {
	LowStock          int
	CriticalStock     int
	ExpiryWarningDays int
}

func DefaultThresholds() Thresholds {
	return Thresholds{LowStock: 10, CriticalStock: 5, ExpiryWarningDays: 30}
}

// Evaluate returns the alerts currently raised by meds. A medicine raises at
// most one stock alert and one expiry alert; critical wins over low and
// expired wins over the warning. IDs are left for the caller to assign.
func Evaluate(meds []domain.Medicine, t Thresholds, now time.Time) []domain.Notification {
	var out []domain.Notification
	for _, m := range meds {
		switch {
		case m.Quantity <= t.CriticalStock:
			out = append(out, notification(domain.NotificationCriticalStock, m, now,
				fmt.Sprintf("%s is critically low: %d left", m.Name, m.Quantity)))
		case m.Quantity <= t.LowStock:
			out = append(out, notification(domain.NotificationLowStock, m, now,
				fmt.Sprintf("%s is running low: %d left", m.Name, m.Quantity)))
		}

		if m.ExpiryDate.IsZero() {
			continue
		}
		days := daysUntil(m.ExpiryDate, now)
		switch {
		case days <= 0:
			out = append(out, notification(domain.NotificationExpired, m, now,
				fmt.Sprintf("%s expired on %s", m.Name, m.ExpiryDate.Format("2006-01-02"))))
		case days <= t.ExpiryWarningDays:
			out = append(out, notification(domain.NotificationExpiryWarning, m, now,
				fmt.Sprintf("%s expires in %d days", m.Name, days)))
		}
	}
	return out
}

// Stale returns the stored alerts of the evaluated medicines that the
// latest evaluation no longer raises, such as a stock alert after a restock.
func Stale(stored []domain.Notification, evaluated []domain.Medicine, fresh []domain.Notification) []domain.Notification {
	ids := make(map[string]struct{}, len(evaluated))
	for _, m := range evaluated {
		ids[m.ID] = struct{}{}
	}
	current := make(map[string]struct{}, len(fresh))
	for _, n := range fresh {
		current[n.Type+"|"+n.MedicineID] = struct{}{}
	}

	var out []domain.Notification
	for _, n := range stored {
		if _, ok := ids[n.MedicineID]; !ok {
			continue
		}
		if _, ok := current[n.Type+"|"+n.MedicineID]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func daysUntil(expiry time.Time, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

func notification(kind string, m domain.Medicine, now time.Time, message string) domain.Notification {
	return domain.Notification{
		Type:         kind,
		MedicineID:   m.ID,
		MedicineName: m.Name,
		Message:      message,
		CreatedAt:    now,
	}
}

// Scheduler runs scan every interval until its context is cancelled.
type Scheduler struct {
	interval time.Duration
	scan     func(ctx context.Context) (int, error)
}

func NewScheduler(interval time.Duration, scan func(ctx context.Context) (int, error)) *Scheduler {
	return &Scheduler{interval: interval, scan: scan}
}

func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	log := logger.Component("alerts")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created, err := s.scan(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("alert scan failed")
				continue
			}
			if created > 0 {
				log.Info().Int("created", created).Msg("alert scan raised notifications")
			}
		}
	}
}
