package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

func testLedger(t *testing.T, cfg *config.QuotaConfig) *Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLedger(client, cfg, nil)
}

func TestLedger_EnforceDurationCap(t *testing.T) {
	l := testLedger(t, &config.QuotaConfig{WeeklyUploadLimit: 10, MaxUploadDuration: 3600})
	ctx := context.Background()
	userID := uuid.New()

	if err := l.Enforce(ctx, userID, 3600); err != nil {
		t.Fatalf("duration at the cap must pass: %v", err)
	}

	err := l.Enforce(ctx, userID, 3601)
	if err == nil {
		t.Fatal("expected quota error above the duration cap")
	}
	var appErr apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_QUOTA_EXCEEDED {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

func TestLedger_WeeklyCountLifecycle(t *testing.T) {
	l := testLedger(t, &config.QuotaConfig{WeeklyUploadLimit: 2, MaxUploadDuration: 14400})
	ctx := context.Background()
	userID := uuid.New()

	remaining, err := l.Remaining(ctx, userID)
	if err != nil || remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d (%v)", remaining, err)
	}

	for i := 0; i < 2; i++ {
		if err := l.Enforce(ctx, userID, 60); err != nil {
			t.Fatalf("upload %d rejected: %v", i, err)
		}
		if err := l.Commit(ctx, userID, 60); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}

	if err := l.Enforce(ctx, userID, 60); err == nil {
		t.Fatal("third upload must be rejected")
	}
	remaining, _ = l.Remaining(ctx, userID)
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}

	// A failed pipeline refunds the charge.
	if err := l.Reconcile(ctx, userID, 60); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := l.Enforce(ctx, userID, 60); err != nil {
		t.Fatalf("upload after refund rejected: %v", err)
	}
}

func TestLedger_ReconcileNeverGoesNegative(t *testing.T) {
	l := testLedger(t, &config.QuotaConfig{WeeklyUploadLimit: 5})
	ctx := context.Background()
	userID := uuid.New()

	// Refund without a prior charge must floor at zero.
	for i := 0; i < 3; i++ {
		if err := l.Reconcile(ctx, userID, 60); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
	}
	remaining, err := l.Remaining(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 5 {
		t.Fatalf("expected full quota of 5 after over-refund, got %d", remaining)
	}

	if err := l.Commit(ctx, userID, 60); err != nil {
		t.Fatal(err)
	}
	remaining, _ = l.Remaining(ctx, userID)
	if remaining != 4 {
		t.Fatalf("expected 4 after commit, got %d", remaining)
	}
}

func TestLedger_PrivilegedBypass(t *testing.T) {
	privileged := uuid.New()
	l := testLedger(t, &config.QuotaConfig{
		WeeklyUploadLimit: 1,
		MaxUploadDuration: 60,
		PrivilegedUserIDs: privileged.String(),
	})
	ctx := context.Background()

	if !l.IsPrivileged(privileged) {
		t.Fatal("expected user to be privileged")
	}
	// Over both the duration cap and, after commits, the weekly count.
	for i := 0; i < 5; i++ {
		if err := l.Enforce(ctx, privileged, 99999); err != nil {
			t.Fatalf("privileged upload rejected: %v", err)
		}
		if err := l.Commit(ctx, privileged, 99999); err != nil {
			t.Fatalf("privileged commit failed: %v", err)
		}
	}
	remaining, err := l.Remaining(ctx, privileged)
	if err != nil || remaining != 1 {
		t.Fatalf("privileged user should always see the full limit, got %d (%v)", remaining, err)
	}
}

func TestLedger_ZeroLimitDisablesCount(t *testing.T) {
	l := testLedger(t, &config.QuotaConfig{WeeklyUploadLimit: 0})
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 20; i++ {
		if err := l.Enforce(ctx, userID, 60); err != nil {
			t.Fatalf("enforce with disabled limit failed: %v", err)
		}
	}
}
