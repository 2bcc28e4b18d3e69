package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holyroller/holyroller/internal/db"
)

func TestRaidIncidentsReturnLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.GetLastRaidIncident(ctx, "g1"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := &db.RaidIncident{
		ID:            "a",
		GuildID:       "g1",
		DetectedAt:    base,
		JoinCount:     4,
		LockdownUntil: base.Add(time.Hour),
	}
	newer := &db.RaidIncident{
		ID:              "b",
		GuildID:         "g1",
		DetectedAt:      base.Add(time.Minute),
		JoinCount:       6,
		LockdownUntil:   base.Add(time.Minute + time.Hour),
		LockdownApplied: true,
		AdminsNotified:  2,
		OwnerNotified:   true,
	}
	for _, incident := range []*db.RaidIncident{newer, older} {
		if err := client.AddRaidIncident(ctx, incident); err != nil {
			t.Fatalf("add incident %s: %v", incident.ID, err)
		}
	}

	got, err := client.GetLastRaidIncident(ctx, "g1")
	if err != nil {
		t.Fatalf("get last incident: %v", err)
	}
	if got.ID != "b" || got.JoinCount != 6 || !got.LockdownApplied || got.AdminsNotified != 2 || !got.OwnerNotified {
		t.Fatalf("unexpected incident: %+v", got)
	}
	if !got.DetectedAt.Equal(newer.DetectedAt) {
		t.Fatalf("detected_at mismatch: %s != %s", got.DetectedAt, newer.DetectedAt)
	}
}
