package repository

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAuthRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	r := NewMemoryAuthRepository()
	r.now = func() time.Time { return now }

	_ = r.SaveChallenge(ctx, "c1", "a@example.com", time.Minute)
	_ = r.SaveCodeHash(ctx, "c1", "hash", 10*time.Second)

	if email, ok, _ := r.GetChallengeEmail(ctx, "c1"); !ok || email != "a@example.com" {
		t.Fatalf("challenge = (%q, %v)", email, ok)
	}

	now = now.Add(11 * time.Second)
	if _, ok, _ := r.GetCodeHash(ctx, "c1"); ok {
		t.Error("code should have expired")
	}
	if _, ok, _ := r.GetChallengeEmail(ctx, "c1"); !ok {
		t.Error("challenge expired too early")
	}

	_ = r.DeleteChallenge(ctx, "c1")
	if _, ok, _ := r.GetChallengeEmail(ctx, "c1"); ok {
		t.Error("challenge survived delete")
	}
}
