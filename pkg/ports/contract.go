package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rxflow/pkg/domain"
)

// RunSessionStoreContract verifies that a SessionStore implementation
// honors the interface semantics. Adapter test suites call this so every
// store (memory, redis) passes the same contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		sess := domain.NewSession("contract-1", now)
		sess.Entities["drug_name"] = "Lisinopril"
		sess.RetryCounts["dose"] = 2
		sess.ConfidenceHistory = []float64{0.91, 0.88}

		if err := store.Put(ctx, sess); err != nil {
			t.Fatalf("put: %v", err)
		}

		loaded, err := store.Get(ctx, "contract-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if loaded.CurrentState != domain.StateCollectRequest {
			t.Errorf("state mismatch: %s", loaded.CurrentState)
		}
		if loaded.Entities["drug_name"] != "Lisinopril" {
			t.Errorf("entities not round-tripped: %v", loaded.Entities)
		}
		if loaded.RetryCounts["dose"] != 2 {
			t.Errorf("retry counts not round-tripped: %v", loaded.RetryCounts)
		}
		if len(loaded.ConfidenceHistory) != 2 || loaded.ConfidenceHistory[0] != 0.91 {
			t.Errorf("confidence history not round-tripped: %v", loaded.ConfidenceHistory)
		}
		if loaded.Version == 0 {
			t.Error("put must assign a nonzero version")
		}
	})

	t.Run("CompareAndPut", func(t *testing.T) {
		sess := domain.NewSession("contract-cas", now)
		if err := store.Put(ctx, sess); err != nil {
			t.Fatalf("put: %v", err)
		}

		loaded, err := store.Get(ctx, "contract-cas")
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		loaded.CurrentState = domain.StateSafetyCheck
		if err := store.CompareAndPut(ctx, loaded, loaded.Version); err != nil {
			t.Fatalf("cas with fresh version: %v", err)
		}

		// Replaying the same expected version must now fail.
		err = store.CompareAndPut(ctx, loaded, loaded.Version-1)
		if !errors.Is(err, domain.ErrStaleSession) {
			t.Fatalf("expected ErrStaleSession, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		sess := domain.NewSession("contract-del", now)
		if err := store.Put(ctx, sess); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Delete(ctx, "contract-del"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		_, err := store.Get(ctx, "contract-del")
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
		}
	})
}
