package scheduler

import (
	"context"
	"testing"
	"time"

	"portal_usap_backend/internal/reconcile"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func sampleRun() reconcile.RunResult {
	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	return reconcile.RunResult{
		RunID:      uuid.MustParse("6f1c1f0e-8d2a-4a8e-9d59-3f0f5e2b7a10"),
		Trigger:    reconcile.TriggerScheduled,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Success:    true,
		Totals:     reconcile.Totals{Partners: 1, Leads: reconcile.EntityResult{Total: 3, Created: 1, Updated: 2}},
		Partners: []reconcile.PartnerResult{{
			PartnerID:  uuid.MustParse("0b7d5f43-2c55-4f7e-9a0e-5a6c2b1d9e01"),
			ExternalID: "zp-1",
			Name:       "Acme",
			Leads:      reconcile.EntityResult{Total: 3, Created: 1, Updated: 2},
			DurationMs: 1200,
		}},
	}
}

func TestStatusStoreRoundTripsThroughRedis(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	writer := NewStatusStore(rdb)
	if err := writer.Save(ctx, sampleRun()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second store, as in the API process, reads what the worker saved.
	got, err := NewStatusStore(rdb).Last(ctx)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if got == nil {
		t.Fatal("expected a stored run")
	}
	if diff := cmp.Diff(sampleRun(), *got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusStoreWithoutRedis(t *testing.T) {
	store := NewStatusStore(nil)
	ctx := context.Background()

	got, err := store.Last(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected no run yet, got %+v (%v)", got, err)
	}

	if err := store.Save(ctx, sampleRun()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = store.Last(ctx)
	if err != nil || got == nil || got.RunID != sampleRun().RunID {
		t.Fatalf("expected the saved run, got %+v (%v)", got, err)
	}
}

func TestDailyScheduleNextRun(t *testing.T) {
	schedule := DailySchedule{Hour: 2, Minute: 30}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at fire time rolls to tomorrow",
			now:  time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "month boundary",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input before fire time",
			now:  time.Date(2026, 3, 1, 3, 0, 0, 0, time.FixedZone("CET", 3600)),
			want: time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input after fire time",
			now:  time.Date(2026, 3, 1, 4, 0, 0, 0, time.FixedZone("CET", 3600)),
			want: time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schedule.NextRun(tt.now); !got.Equal(tt.want) {
				t.Fatalf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}

	if spec := schedule.CronSpec(); spec != "30 2 * * *" {
		t.Fatalf("unexpected cron spec %q", spec)
	}
}
