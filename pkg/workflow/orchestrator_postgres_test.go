package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/database"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/ledger"
	"github.com/phase-edms/phase/pkg/models"
)

// TestSaveDocumentForms_ConcurrentRevisions submits the same revision from
// several writers holding the same metadata. Exactly one may win.
func TestSaveDocumentForms_ConcurrentRevisions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("phase"),
		tcpostgres.WithUsername("phase"),
		tcpostgres.WithPassword("phase"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Connect(database.Config{DSN: dsn}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	orch, err := New(Config{DB: db, Clock: testutil.FixedClock()})
	require.NoError(t, err)
	typ, err := orch.Types().Get(doctype.ContractorDeliverable)
	require.NoError(t, err)
	category := testutil.CreateCategory(t, db, "FAC09001-FWF-000", doctype.ContractorDeliverable)

	created, err := orch.SaveDocumentForms(ctx,
		NewMetadataForm(typ, nil, deliverableData()),
		NewRevisionForm(typ, nil, map[string]any{}),
		category,
	)
	require.NoError(t, err)

	_, snapshot, _, err := orch.Load(ctx, created.Document.ID)
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metadata := *snapshot
			_, err := orch.SaveDocumentForms(ctx,
				NewMetadataForm(typ, &metadata, map[string]any{}),
				NewRevisionForm(typ, nil, map[string]any{"status": "IFR"}),
				category,
			)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrRevisionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	count, err := ledger.New(db).Count(ctx, created.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, ledger.New(db).Verify(ctx, created.Document.ID, 0))
}
