package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/notifications/backends"
	"github.com/phase-edms/phase/pkg/storage"
	"github.com/phase-edms/phase/pkg/transmittals"
)

func newServer(t *testing.T, cfg *config.Config) (*Server, *backends.TestBackend) {
	t.Helper()

	mail := backends.NewTestBackend(backends.TestBackendConfig{RecordMessages: true})
	registry, err := backends.NewRegistry(nil, nil)
	require.NoError(t, err)
	registry.Register(mail)

	s, err := New(context.Background(), cfg, nil, Options{
		DB:      testutil.SetupDB(t),
		Storage: storage.NewMemory(),
		Sender:  backends.NewDispatcher(registry, backends.DispatcherConfig{}),
		Clock:   testutil.FixedClock(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mail
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_OutgoingTransmittal(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Transmittals.Recipients = map[string][]string{"CTR": {"dc@contractor.example"}}
	s, mail := newServer(t, cfg)
	ctx := context.Background()

	trsCat := testutil.CreateCategory(t, s.DB, "FAC09001-TRS", doctype.Transmittals)
	docCat := testutil.CreateCategory(t, s.DB, "FAC09001-FWF-000", doctype.ContractorDeliverable)
	doc, revs := testutil.CreateDocument(t, s.DB, docCat, "DOC-1", 0,
		models.Revision{NativeFile: "revisions/doc-1_0.docx"})
	require.NoError(t, s.Storage.Put(ctx, revs[0].NativeFile, strings.NewReader("native")))

	trs, err := s.Transmittals.CreateOutgoing(ctx, transmittals.OutgoingRequest{
		CategoryID:     trsCat.ID,
		ContractNumber: "FAC09001",
		Originator:     "FWF",
		Recipient:      "CTR",
		Revisions:      []transmittals.Selection{{DocumentID: doc.ID}},
	})
	require.NoError(t, err)

	var saved models.Transmittal
	require.NoError(t, s.DB.First(&saved, trs.ID).Error)
	assert.Equal(t, models.TransmittalStatusDone, saved.Status)

	exists, err := s.Storage.Exists(ctx, "outgoing/"+trs.TransmittalKey+"/doc-1_0.docx")
	require.NoError(t, err)
	assert.True(t, exists)

	outbox := mail.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, "dc@contractor.example", outbox[0].Recipients[0].Email)
}

func TestNew_ValueLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lists:
  - name: disciplines
    entries:
      - value: HSE
        label: Health, safety and environment
`), 0o600))

	cfg := defaultConfig(t)
	cfg.ValueLists = path
	s, _ := newServer(t, cfg)

	assert.NotNil(t, s.Types)
	assert.NotNil(t, s.Workflow)
	assert.NotNil(t, s.Reminder)
	assert.NotNil(t, s.Exports)
	assert.NotNil(t, s.Index)

	cfg.ValueLists = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, nil, Options{
		DB:      testutil.SetupDB(t),
		Storage: storage.NewMemory(),
	})
	assert.ErrorContains(t, err, "failed to open value lists")
}
