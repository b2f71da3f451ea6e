package transmittals

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	notify "github.com/phase-edms/phase/internal/notifications"
	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/notifications/backends"
	"github.com/phase-edms/phase/pkg/storage"
)

type fixture struct {
	db       *gorm.DB
	clock    *testutil.StubClock
	store    *storage.FS
	bus      *events.Bus
	packager *Packager
	trsCat   *models.Category
	docCat   *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupDB(t)
	clk := testutil.FixedClock()
	store := storage.NewMemory()
	bus := events.NewBus(nil)

	p, err := NewPackager(Config{
		DB:          db,
		Bus:         bus,
		Storage:     store,
		Clock:       clk,
		OutgoingDir: "outgoing",
	})
	require.NoError(t, err)
	p.Register()

	return &fixture{
		db:       db,
		clock:    clk,
		store:    store,
		bus:      bus,
		packager: p,
		trsCat:   testutil.CreateCategory(t, db, "FAC09001-TRS", doctype.Transmittals),
		docCat:   testutil.CreateCategory(t, db, "FAC09001-FWF-000", doctype.ContractorDeliverable),
	}
}

func (f *fixture) document(t *testing.T, key string, revisions ...models.Revision) (*models.Document, []*models.Revision) {
	t.Helper()
	doc, revs := testutil.CreateDocument(t, f.db, f.docCat, key, 0, revisions...)
	for _, r := range revs {
		for _, name := range r.Files(true, true) {
			require.NoError(t, f.store.Put(context.Background(), name, strings.NewReader(name)))
		}
	}
	return doc, revs
}

func (f *fixture) outgoing(docs ...*models.Document) OutgoingRequest {
	req := OutgoingRequest{
		CategoryID:     f.trsCat.ID,
		ContractNumber: "FAC09001",
		Originator:     "FWF",
		Recipient:      "CTR",
	}
	for _, d := range docs {
		req.Revisions = append(req.Revisions, Selection{DocumentID: d.ID})
	}
	return req
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	r, err := f.store.Open(context.Background(), name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to models.TransmittalStatus
		want     bool
	}{
		{models.TransmittalStatusNew, models.TransmittalStatusProcessing, true},
		{models.TransmittalStatusNew, models.TransmittalStatusInvalid, true},
		{models.TransmittalStatusNew, models.TransmittalStatusDone, false},
		{models.TransmittalStatusProcessing, models.TransmittalStatusDone, true},
		{models.TransmittalStatusProcessing, models.TransmittalStatusAccepted, true},
		{models.TransmittalStatusProcessing, models.TransmittalStatusRejected, true},
		{models.TransmittalStatusProcessing, models.TransmittalStatusNew, false},
		{models.TransmittalStatusDone, models.TransmittalStatusProcessing, false},
		{models.TransmittalStatusInvalid, models.TransmittalStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, IsFinal(models.TransmittalStatusDone))
	assert.False(t, IsFinal(models.TransmittalStatusNew))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "FAC09001-FWF-CTR-TRS-00042", Key("FAC09001", "FWF", "CTR", 42))
}

func TestCreateOutgoing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc1, _ := f.document(t, "DOC-1",
		models.Revision{NativeFile: "revisions/doc-1_0.docx", PDFFile: "revisions/doc-1_0.pdf"},
		models.Revision{NativeFile: "revisions/doc-1_1.docx", PDFFile: "revisions/doc-1_1.pdf"},
	)
	doc2, _ := f.document(t, "DOC-2", models.Revision{PDFFile: "revisions/doc-2_0.pdf"})

	trs, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc1, doc2))
	require.NoError(t, err)
	assert.Equal(t, "FAC09001-FWF-CTR-TRS-00001", trs.TransmittalKey)
	assert.Equal(t, 1, trs.SequentialNumber)
	assert.Equal(t, "2024-01-15", trs.TransmittalDate.Format(doctype.DateLayout))

	saved, err := models.GetTransmittalByKey(f.db, trs.TransmittalKey)
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusDone, saved.Status)
	require.Len(t, saved.Revisions, 2)
	assert.Equal(t, 1, saved.Revisions[0].Revision, "latest revision is selected by default")
	assert.Equal(t, "revisions/doc-1_1.pdf", saved.Revisions[0].PDFFile)

	names, err := f.store.List(ctx, "outgoing/FAC09001-FWF-CTR-TRS-00001")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"outgoing/FAC09001-FWF-CTR-TRS-00001/doc-1_1.docx",
		"outgoing/FAC09001-FWF-CTR-TRS-00001/doc-1_1.pdf",
		"outgoing/FAC09001-FWF-CTR-TRS-00001/doc-2_0.pdf",
	}, names)
	assert.Equal(t, "revisions/doc-1_1.pdf", f.read(t, "outgoing/FAC09001-FWF-CTR-TRS-00001/doc-1_1.pdf"))

	next, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc2))
	require.NoError(t, err)
	assert.Equal(t, "FAC09001-FWF-CTR-TRS-00002", next.TransmittalKey)
}

func TestCreateOutgoing_SelectedRevision(t *testing.T) {
	f := newFixture(t)

	doc, revs := f.document(t, "DOC-1", models.Revision{PDFFile: "a.pdf"}, models.Revision{PDFFile: "b.pdf"})
	req := f.outgoing()
	req.Revisions = []Selection{{DocumentID: doc.ID, RevisionID: revs[0].ID}}

	trs, err := f.packager.CreateOutgoing(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, trs.Revisions, 1)
	assert.Equal(t, 0, trs.Revisions[0].Revision)
	assert.Equal(t, "a.pdf", trs.Revisions[0].PDFFile)
}

func TestCreateOutgoing_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc1, _ := f.document(t, "DOC-1")
	_, revs2 := f.document(t, "DOC-2")

	_, err := f.packager.CreateOutgoing(ctx, f.outgoing())
	assert.ErrorIs(t, err, ErrNoRevisions)

	req := f.outgoing()
	req.Recipient = ""
	req.Revisions = []Selection{{DocumentID: doc1.ID}}
	_, err = f.packager.CreateOutgoing(ctx, req)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.packager.CreateOutgoing(ctx, f.outgoing(doc1, doc1))
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	req = f.outgoing()
	req.Revisions = []Selection{{DocumentID: doc1.ID, RevisionID: revs2[0].ID}}
	_, err = f.packager.CreateOutgoing(ctx, req)
	assert.ErrorIs(t, err, ErrRevisionMismatch)

	var count int64
	require.NoError(t, f.db.Model(&models.Transmittal{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateOutgoing_MissingFileLeavesProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, _ := testutil.CreateDocument(t, f.db, f.docCat, "DOC-1", 0, models.Revision{PDFFile: "missing.pdf"})

	trs, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc))
	require.NoError(t, err, "handler failures do not fail the committed write")

	saved, err := models.GetTransmittalByKey(f.db, trs.TransmittalKey)
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusProcessing, saved.Status)
	assert.Contains(t, saved.StatusDescription, "missing.pdf")

	require.NoError(t, f.store.Put(ctx, "missing.pdf", strings.NewReader("pdf")))
	done, err := f.packager.Process(ctx, trs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusDone, done.Status)

	_, err = f.packager.Process(ctx, trs.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreateOutgoing_HandlerRunsAfterCommit(t *testing.T) {
	f := newFixture(t)
	doc, _ := f.document(t, "DOC-1")

	var seen int64 = -1
	f.bus.Subscribe(events.TransmittalCreated, "probe", func(ctx context.Context, evt events.Event) error {
		return f.db.Model(&models.Transmittal{}).
			Where("transmittal_key = ?", evt.Transmittal.TransmittalKey).
			Count(&seen).Error
	})

	_, err := f.packager.CreateOutgoing(context.Background(), f.outgoing(doc))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seen)
}

func (f *fixture) incoming(t *testing.T, keys ...string) *models.Transmittal {
	t.Helper()
	ctx := context.Background()

	req := IncomingRequest{
		CategoryID:       f.trsCat.ID,
		ContractNumber:   "FAC09001",
		Originator:       "CTR",
		Recipient:        "FWF",
		SequentialNumber: 3,
		TobecheckedDir:   "incoming/tobechecked",
		AcceptedDir:      "incoming/accepted",
		RejectedDir:      "incoming/rejected",
	}
	for _, k := range keys {
		req.Revisions = append(req.Revisions, IncomingRevision{DocumentKey: k, Revision: 1, PDFFile: k + ".pdf"})
		require.NoError(t, f.store.Put(ctx, "incoming/tobechecked/FAC09001-CTR-FWF-TRS-00003/"+k+".pdf", strings.NewReader(k)))
	}

	trs, err := f.packager.CreateIncoming(ctx, req)
	require.NoError(t, err)
	return trs
}

func TestIncoming_Accept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, _ := f.document(t, "DOC-1")

	trs := f.incoming(t, "DOC-1")
	assert.Equal(t, models.TransmittalStatusNew, trs.Status)
	assert.Equal(t, "FAC09001-CTR-FWF-TRS-00003", trs.TransmittalKey)
	assert.Equal(t, doc.ID, trs.Revisions[0].DocumentID)

	accepted, err := f.packager.Accept(ctx, trs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusAccepted, accepted.Status)

	names, err := f.store.List(ctx, "incoming/accepted/FAC09001-CTR-FWF-TRS-00003")
	require.NoError(t, err)
	assert.Equal(t, []string{"incoming/accepted/FAC09001-CTR-FWF-TRS-00003/DOC-1.pdf"}, names)

	left, err := f.store.List(ctx, "incoming/tobechecked/FAC09001-CTR-FWF-TRS-00003")
	require.NoError(t, err)
	assert.Empty(t, left)

	saved, err := models.GetTransmittalByKey(f.db, trs.TransmittalKey)
	require.NoError(t, err)
	require.NotNil(t, saved.Revisions[0].Accepted)
	assert.True(t, *saved.Revisions[0].Accepted)

	_, err = f.packager.Reject(ctx, trs.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIncoming_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.document(t, "DOC-1")

	trs := f.incoming(t, "DOC-1")
	rejected, err := f.packager.Reject(ctx, trs.ID, "wrong revision")
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusRejected, rejected.Status)
	assert.Equal(t, "wrong revision", rejected.StatusDescription)

	ok, err := f.store.Exists(ctx, "incoming/rejected/FAC09001-CTR-FWF-TRS-00003/DOC-1.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncoming_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.packager.CreateIncoming(ctx, IncomingRequest{
		CategoryID:       f.trsCat.ID,
		ContractNumber:   "FAC09001",
		Originator:       "CTR",
		Recipient:        "FWF",
		SequentialNumber: 1,
		TobecheckedDir:   "a",
		AcceptedDir:      "b",
		RejectedDir:      "c",
		Revisions:        []IncomingRevision{{DocumentKey: "UNKNOWN"}},
	})
	assert.ErrorIs(t, err, ErrUnknownDocument)

	_, err = f.packager.CreateIncoming(ctx, IncomingRequest{CategoryID: f.trsCat.ID})
	assert.ErrorIs(t, err, ErrMissingField)

	f.document(t, "DOC-1")
	trs := f.incoming(t, "DOC-1")
	invalid, err := f.packager.Invalidate(ctx, trs.ID, "unreadable")
	require.NoError(t, err)
	assert.Equal(t, models.TransmittalStatusInvalid, invalid.Status)

	_, err = f.packager.Accept(ctx, trs.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	doc, _ := f.document(t, "DOC-2")
	out, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc))
	require.NoError(t, err)
	_, err = f.packager.Accept(ctx, out.ID)
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestAcknowledgeAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, _ := f.document(t, "DOC-1")

	first, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc))
	require.NoError(t, err)
	second, err := f.packager.CreateOutgoing(ctx, f.outgoing(doc))
	require.NoError(t, err)

	assert.False(t, f.packager.IsOverdue(first))

	f.clock.AdvanceDays(DefaultAckDueDays)
	overdue, err := f.packager.ListOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue, "due date itself is not overdue")

	f.clock.AdvanceDays(1)
	overdue, err = f.packager.ListOverdue(ctx)
	require.NoError(t, err)
	assert.Len(t, overdue, 2)

	acked, err := f.packager.Acknowledge(ctx, first.ID, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, acked.AckOfReceiptDate)
	assert.Equal(t, "2024-01-23", acked.AckOfReceiptDate.Format(doctype.DateLayout))
	assert.False(t, f.packager.IsOverdue(acked))

	_, err = f.packager.Acknowledge(ctx, first.ID, time.Time{})
	assert.ErrorIs(t, err, ErrAlreadyAcknowledged)

	overdue, err = f.packager.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, second.TransmittalKey, overdue[0].TransmittalKey)
}

func TestNotifyCreated(t *testing.T) {
	f := newFixture(t)

	mail := backends.NewTestBackend(backends.TestBackendConfig{RecordMessages: true})
	registry, err := backends.NewRegistry(nil, nil)
	require.NoError(t, err)
	registry.Register(mail)
	provider, err := notify.NewProvider(backends.NewDispatcher(registry, backends.DispatcherConfig{}), f.clock, nil)
	require.NoError(t, err)

	f.bus.SubscribeSender(events.TransmittalCreated, events.SenderOutgoingTransmittal, "notify",
		NotifyCreated(provider, map[string][]string{"CTR": {"dc@contractor.example"}}))

	doc, _ := f.document(t, "DOC-1")
	trs, err := f.packager.CreateOutgoing(context.Background(), f.outgoing(doc))
	require.NoError(t, err)

	outbox := mail.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, trs.TransmittalKey, outbox[0].TransmittalKey)
	assert.Equal(t, "dc@contractor.example", outbox[0].Recipients[0].Email)
	assert.Contains(t, outbox[0].Body, "DOC-1")
}
