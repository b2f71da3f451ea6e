package doctype

import (
	"errors"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/valuelists"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(nil)

	var names []string
	for _, typ := range r.All() {
		names = append(names, typ.Name())
	}
	assert.Equal(t, []string{
		ContractorDeliverable, Correspondence, MinutesOfMeeting, Transmittals, DemoMetadata,
	}, names)

	var reviewable []string
	for _, typ := range r.Reviewable() {
		reviewable = append(reviewable, typ.Name())
	}
	assert.Equal(t, []string{ContractorDeliverable, DemoMetadata}, reviewable)

	cd, err := r.Get(ContractorDeliverable)
	require.NoError(t, err)
	assert.Equal(t, 0, cd.FirstRevisionNumber())

	corr, err := r.Get(Correspondence)
	require.NoError(t, err)
	assert.Equal(t, 1, corr.FirstRevisionNumber())
	assert.Equal(t, "correspondence_revision", RevisionSender(corr))

	_, err = r.Get("invoice")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&definition{name: "a"}))
	assert.Error(t, r.Register(&definition{name: "a"}))
}

func TestField_Label(t *testing.T) {
	assert.Equal(t, "Sequential number", Field{Name: "sequential_number"}.Label())
	assert.Equal(t, "Title", Field{Name: "title"}.Label())
}

func TestContractorDeliverable_GenerateKey(t *testing.T) {
	typ, err := DefaultRegistry(nil).Get(ContractorDeliverable)
	require.NoError(t, err)
	category := &models.Category{Code: "FAC09001-FWF-000"}

	tests := []struct {
		name     string
		metadata models.Metadata
		want     string
		wantErr  error
	}{
		{
			name: "category prefix",
			metadata: models.Metadata{
				Title: "HAZOP report", Discipline: "HSE", DocType: "REP", SequentialNumber: "0004",
			},
			want: "FAC09001-FWF-000-HSE-REP-0004",
		},
		{
			name: "contract prefix",
			metadata: models.Metadata{
				ContractNumber: "fac10005", Originator: "CTR", Unit: "100",
				Discipline: "CIV", DocType: "DWG", SequentialNumber: "12",
			},
			want: "FAC10005-CTR-100-CIV-DWG-0012",
		},
		{
			name: "partial contract falls back to category",
			metadata: models.Metadata{
				ContractNumber: "FAC10005", Discipline: "HSE", DocType: "REP", SequentialNumber: "4",
			},
			want: "FAC09001-FWF-000-HSE-REP-0004",
		},
		{
			name:     "missing discipline",
			metadata: models.Metadata{DocType: "REP", SequentialNumber: "4"},
			wantErr:  ErrIncompleteKey,
		},
		{
			name:     "missing sequential number",
			metadata: models.Metadata{Discipline: "HSE", DocType: "REP"},
			wantErr:  ErrIncompleteKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := typ.GenerateKey(&tt.metadata, category)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestExchangeTypes_GenerateKey(t *testing.T) {
	r := DefaultRegistry(nil)
	m := &models.Metadata{
		ContractNumber: "FAC09001", Originator: "FWF", Recipient: "CTR",
		DocType: "LTR", SequentialNumber: "31",
	}

	for _, name := range []string{Correspondence, MinutesOfMeeting, Transmittals} {
		t.Run(name, func(t *testing.T) {
			typ, err := r.Get(name)
			require.NoError(t, err)
			key, err := typ.GenerateKey(m, nil)
			require.NoError(t, err)
			assert.Equal(t, "FAC09001-FWF-CTR-LTR-0031", key)
		})
	}
}

func TestDemoMetadata_GenerateKey(t *testing.T) {
	typ, err := DefaultRegistry(nil).Get(DemoMetadata)
	require.NoError(t, err)

	key, err := typ.GenerateKey(&models.Metadata{Title: "HAZOP report"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "HAZOP-REPORT", key)

	_, err = typ.GenerateKey(&models.Metadata{Title: "  "}, nil)
	assert.ErrorIs(t, err, ErrIncompleteKey)
}

func TestDecodeMetadata(t *testing.T) {
	typ, err := DefaultRegistry(nil).Get(Correspondence)
	require.NoError(t, err)

	t.Run("valid data", func(t *testing.T) {
		m := &models.Metadata{}
		err := typ.DecodeMetadata(map[string]any{
			"subject":             "Site access",
			"correspondence_date": "2012-04-20",
			"contract_number":     "FAC09001",
			"originator":          "FWF",
			"recipient":           "CTR",
			"document_type":       "LTR",
			"sequential_number":   "7",
			"response_required":   "true",
		}, m)
		require.NoError(t, err)

		assert.Equal(t, "Site access", m.Title)
		assert.Equal(t, "0007", m.SequentialNumber)
		assert.Equal(t, Correspondence, m.DocumentType)
		assert.Equal(t, "2012-04-20", MetadataValue(m, "correspondence_date"))
		assert.Equal(t, true, MetadataValue(m, "response_required"))
	})

	t.Run("unknown and missing fields", func(t *testing.T) {
		m := &models.Metadata{}
		err := typ.DecodeMetadata(map[string]any{"colour": "red"}, m)
		require.Error(t, err)

		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.ErrorIs(t, verrs["colour"], ErrUnknownField)
	})

	t.Run("required fields", func(t *testing.T) {
		m := &models.Metadata{}
		err := typ.DecodeMetadata(map[string]any{"subject": "Site access"}, m)
		require.Error(t, err)

		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs, "correspondence_date")
		assert.Contains(t, verrs, "contract_number")
		assert.NotContains(t, verrs, "subject")
	})

	t.Run("value list", func(t *testing.T) {
		m := &models.Metadata{}
		err := typ.DecodeMetadata(map[string]any{
			"subject":             "Site access",
			"correspondence_date": "2012-04-20",
			"contract_number":     "FAC09001",
			"originator":          "NOPE",
			"recipient":           "CTR",
			"document_type":       "LTR",
			"sequential_number":   "7",
		}, m)
		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs, "originator")
	})

	t.Run("invalid date", func(t *testing.T) {
		m := &models.Metadata{}
		err := typ.DecodeMetadata(map[string]any{"correspondence_date": "not a date"}, m)
		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs, "correspondence_date")
	})

	t.Run("invalid document key", func(t *testing.T) {
		typ, err := DefaultRegistry(nil).Get(DemoMetadata)
		require.NoError(t, err)

		m := &models.Metadata{}
		err = typ.DecodeMetadata(map[string]any{"title": "Demo", "document_key": "bad key"}, m)
		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs, "document_key")
	})

	t.Run("partial update merges", func(t *testing.T) {
		typ, err := DefaultRegistry(nil).Get(DemoMetadata)
		require.NoError(t, err)

		m := &models.Metadata{Title: "Original", DocumentKey: "ORIGINAL"}
		require.NoError(t, typ.DecodeMetadata(map[string]any{"title": "Renamed"}, m))
		assert.Equal(t, "Renamed", m.Title)
		assert.Equal(t, "ORIGINAL", m.DocumentKey)
	})
}

func TestDecodeRevision(t *testing.T) {
	typ, err := DefaultRegistry(nil).Get(ContractorDeliverable)
	require.NoError(t, err)

	r := &models.Revision{}
	err = typ.DecodeRevision(map[string]any{
		"status":         "IFR",
		"final_revision": false,
		"received_date":  time.Date(2012, 4, 20, 15, 0, 0, 0, time.UTC),
		"native_file":    "hazop.docx",
		"reviewers":      "alice, bob",
		"leader":         "carol",
		"klass":          "2",
	}, r)
	require.NoError(t, err)

	assert.Equal(t, "IFR", r.Status)
	assert.Equal(t, "hazop.docx", r.NativeFile)
	assert.Equal(t, []string{"alice", "bob"}, r.Reviewers)
	assert.Equal(t, "carol", r.Leader)
	assert.Equal(t, 2, RevisionValue(r, "klass"))
	require.NotNil(t, r.ReceivedDate)
	assert.Equal(t, time.Date(2012, 4, 20, 0, 0, 0, 0, time.UTC), *r.ReceivedDate)

	t.Run("unknown status", func(t *testing.T) {
		err := typ.DecodeRevision(map[string]any{"status": "XYZ"}, &models.Revision{})
		var verrs validation.Errors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs, "status")
	})

	t.Run("empty date clears", func(t *testing.T) {
		require.NoError(t, typ.DecodeRevision(map[string]any{"received_date": ""}, r))
		assert.Nil(t, r.ReceivedDate)
	})
}

func TestDecode_CustomLists(t *testing.T) {
	lists := valuelists.New()
	lists.Set(valuelists.List{Name: valuelists.Disciplines, Entries: []valuelists.Entry{{Value: "GEO"}}})

	typ, err := DefaultRegistry(lists).Get(ContractorDeliverable)
	require.NoError(t, err)

	data := map[string]any{
		"title": "Survey", "discipline": "GEO", "document_type": "REP", "sequential_number": "1",
	}
	assert.NoError(t, typ.DecodeMetadata(data, &models.Metadata{}))

	data["discipline"] = "HSE"
	assert.Error(t, typ.DecodeMetadata(data, &models.Metadata{}))
}

func TestNormalizeSequentialNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "4", want: "0004"},
		{in: "0004", want: "0004"},
		{in: " 123 ", want: "0123"},
		{in: "9999", want: "9999"},
		{in: "00012", want: "0012"},
		{in: "12345", wantErr: true},
		{in: "12a", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSequentialNumber(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("FAC09001-FWF-000-HSE-REP-0004"))
	assert.NoError(t, ValidateKey("A"))
	for _, bad := range []string{"", "a-b", "A--B", "-A", "A-", "A B", "A_B"} {
		assert.ErrorIs(t, ValidateKey(bad), ErrInvalidKey, bad)
	}
}
