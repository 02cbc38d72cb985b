package alerts

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/domain"
)

func TestEvaluateRaisesOneAlertPerConcern(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	meds := []domain.Medicine{
		{ID: "m1", Name: "Aspirin", Quantity: 3, ExpiryDate: now.AddDate(1, 0, 0)},
		{ID: "m2", Name: "Ibuprofen", Quantity: 8, ExpiryDate: now.AddDate(0, 0, 10)},
		{ID: "m3", Name: "Omeprazole", Quantity: 50, ExpiryDate: now.AddDate(0, 0, -1)},
		{ID: "m4", Name: "Loratadine", Quantity: 50, ExpiryDate: now.AddDate(0, 6, 0)},
		{ID: "m5", Name: "Gauze", Quantity: 40},
	}

	got := Evaluate(meds, DefaultThresholds(), now)

	kinds := map[string]string{}
	for _, n := range got {
		kinds[n.MedicineID+"/"+n.Type] = n.Message
	}
	assert.Len(t, got, 4)
	assert.Contains(t, kinds, "m1/"+domain.NotificationCriticalStock)
	assert.Contains(t, kinds, "m2/"+domain.NotificationLowStock)
	assert.Contains(t, kinds, "m2/"+domain.NotificationExpiryWarning)
	assert.Contains(t, kinds, "m3/"+domain.NotificationExpired)
	assert.Equal(t, "Ibuprofen expires in 10 days", kinds["m2/"+domain.NotificationExpiryWarning])
}

func TestEvaluateHonoursCustomThresholds(t *testing.T) {
	now := time.Now().UTC()
	meds := []domain.Medicine{{ID: "m1", Name: "Insulin", Quantity: 15}}

	assert.Empty(t, Evaluate(meds, DefaultThresholds(), now))

	got := Evaluate(meds, Thresholds{LowStock: 20, CriticalStock: 2, ExpiryWarningDays: 7}, now)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NotificationLowStock, got[0].Type)
}

func TestStaleDropsAlertsThatNoLongerApply(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	restocked := domain.Medicine{ID: "m1", Name: "Aspirin", Quantity: 8}
	untouched := domain.Medicine{ID: "m2", Name: "Ibuprofen", Quantity: 2}
	stored := []domain.Notification{
		{ID: "n1", Type: domain.NotificationCriticalStock, MedicineID: "m1"},
		{ID: "n2", Type: domain.NotificationCriticalStock, MedicineID: "m2"},
	}

	fresh := Evaluate([]domain.Medicine{restocked}, DefaultThresholds(), now)
	require.Len(t, fresh, 1)
	assert.Equal(t, domain.NotificationLowStock, fresh[0].Type)

	stale := Stale(stored, []domain.Medicine{restocked}, fresh)
	require.Len(t, stale, 1)
	assert.Equal(t, "n1", stale[0].ID)

	assert.Empty(t, Stale(stored, []domain.Medicine{untouched}, Evaluate([]domain.Medicine{untouched}, DefaultThresholds(), now)))
}

func TestSchedulerScansUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s := NewScheduler(5*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
