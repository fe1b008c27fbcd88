package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/repository/firestore"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/repository/sqlite"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	repo, err := sqlite.New(filepath.Join(t.TempDir(), "keryx.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close sqlite repository: %v", err)
		}
	})
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	ctx := context.Background()
	// Use standard collection names (no prefix) to utilize existing Firestore
	// indexes. Test data isolation is achieved through random IDs in test data.
	repo, err := firestore.New(ctx, projectID, os.Getenv("TEST_FIRESTORE_DATABASE_ID"))
	if err != nil {
		t.Fatalf("failed to create firestore repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close firestore repository: %v", err)
		}
	})
	return repo
}
