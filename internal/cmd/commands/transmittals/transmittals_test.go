package transmittals

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/models"
)

func seedOutgoing(t *testing.T, w *testutil.Workspace, cat *models.Category, key string, seq int) {
	t.Helper()
	require.NoError(t, w.DB.Create(&models.Transmittal{
		TransmittalKey:   key,
		Direction:        models.TransmittalOutgoing,
		CategoryID:       cat.ID,
		ContractNumber:   "FAC09001",
		Originator:       "FWF",
		Recipient:        "CTR",
		SequentialNumber: seq,
		TransmittalDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:           models.TransmittalStatusDone,
	}).Error)
}

func newBase() (*base.Command, *cli.MockUi) {
	ui := cli.NewMockUi()
	return base.NewCommand(hclog.NewNullLogger(), ui), ui
}

func TestOverdueAndAck(t *testing.T) {
	w := testutil.SetupWorkspace(t, "")
	cat := testutil.CreateCategory(t, w.DB, "FAC09001-TRS", doctype.Transmittals)
	seedOutgoing(t, w, cat, "FAC09001-FWF-CTR-TRS-00001", 1)
	seedOutgoing(t, w, cat, "FAC09001-FWF-CTR-TRS-00002", 2)

	b, ui := newBase()
	overdue := &OverdueCommand{Command: b}
	assert.Equal(t, 2, overdue.Run([]string{"-config", w.ConfigPath}))
	assert.Contains(t, ui.OutputWriter.String(), "FAC09001-FWF-CTR-TRS-00001\t2024-01-02\tCTR")
	assert.Contains(t, ui.ErrorWriter.String(), "2 transmittal(s) overdue")

	b, ui = newBase()
	ack := &AckCommand{Command: b}
	require.Equal(t, 0, ack.Run([]string{
		"-config", w.ConfigPath,
		"-key", "FAC09001-FWF-CTR-TRS-00001",
		"-date", "Jan 5, 2024",
	}), ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "acknowledged on 2024-01-05")

	b, ui = newBase()
	ack = &AckCommand{Command: b}
	assert.Equal(t, 1, ack.Run([]string{"-config", w.ConfigPath, "-key", "FAC09001-FWF-CTR-TRS-00001"}))
	assert.Contains(t, ui.ErrorWriter.String(), "already acknowledged")

	b, ui = newBase()
	overdue = &OverdueCommand{Command: b}
	assert.Equal(t, 2, overdue.Run([]string{"-config", w.ConfigPath}))
	assert.NotContains(t, ui.OutputWriter.String(), "TRS-00001")
}

func TestAck_Errors(t *testing.T) {
	w := testutil.SetupWorkspace(t, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing key", []string{"-config", w.ConfigPath}, "a transmittal key is required"},
		{"unknown key", []string{"-config", w.ConfigPath, "-key", "NOPE"}, "error loading transmittal NOPE"},
		{"bad date", []string{"-config", w.ConfigPath, "-key", "X", "-date", "someday"}, "invalid date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ui := newBase()
			cmd := &AckCommand{Command: b}
			assert.Equal(t, 1, cmd.Run(tt.args))
			assert.Contains(t, ui.ErrorWriter.String(), tt.want)
		})
	}
}
