package repository

import (
	"context"
	"testing"
	"time"
)

func TestNonceRepository_MarkSeen(t *testing.T) {
	ctx := context.Background()
	repo := NewNonceRepository(setupTestDB(t))

	fresh, err := repo.MarkSeen(ctx, "1372623149", "1409659813")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if !fresh {
		t.Error("expected first sighting to be fresh")
	}

	fresh, err = repo.MarkSeen(ctx, "1372623149", "1409659813")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if fresh {
		t.Error("expected replay to be detected")
	}

	// 同じnonceでもtimestampが異なれば別の組
	fresh, err = repo.MarkSeen(ctx, "1372623149", "1409659814")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if !fresh {
		t.Error("expected different timestamp to be fresh")
	}
}

func TestNonceRepository_Forget(t *testing.T) {
	ctx := context.Background()
	repo := NewNonceRepository(setupTestDB(t))

	for _, ts := range []string{"1409659813", "1409659814"} {
		if _, err := repo.MarkSeen(ctx, "1372623149", ts); err != nil {
			t.Fatalf("MarkSeen failed: %v", err)
		}
	}

	if err := repo.Forget(ctx, "1372623149", "1409659813"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	// 未記録の組の取り消しはエラーにしない
	if err := repo.Forget(ctx, "unknown", "1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	fresh, err := repo.MarkSeen(ctx, "1372623149", "1409659813")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if !fresh {
		t.Error("expected forgotten pair to be fresh again")
	}
	fresh, _ = repo.MarkSeen(ctx, "1372623149", "1409659814")
	if fresh {
		t.Error("expected other timestamp to stay recorded")
	}
}

func TestNonceRepository_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewNonceRepository(db)

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := db.Create(&CallbackNonceModel{Nonce: "old", Timestamp: "1", SeenAt: old}).Error; err != nil {
		t.Fatalf("failed to insert test data: %v", err)
	}
	if _, err := repo.MarkSeen(ctx, "new", "2"); err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}

	n, err := repo.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	// 削除済みのnonceは再び受理される
	fresh, err := repo.MarkSeen(ctx, "old", "1")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if !fresh {
		t.Error("expected purged nonce to be fresh again")
	}
	fresh, _ = repo.MarkSeen(ctx, "new", "2")
	if fresh {
		t.Error("expected retained nonce to be a replay")
	}
}
