package render

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanchiconsoli/email-monitor/model"
	"github.com/juanchiconsoli/email-monitor/status"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

func TestFormatDate(t *testing.T) {
	rec := model.BackupRecord{Date: time.Date(2024, time.January, 5, 22, 15, 0, 0, time.Local)}
	assert.Equal(t, "Friday, 05 January 2024 10:15 PM", FormatDate(rec))

	assert.Equal(t, "not-a-date", FormatDate(model.BackupRecord{RawDate: "not-a-date"}))
	assert.Equal(t, "-", FormatDate(model.BackupRecord{}))
}

func TestClients(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Clients(&buf, []model.Client{
		{Name: "Acme", Email: "it@acme.example"},
		{Name: "Globex", Email: "ops@globex.example"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "ops@globex.example")

	buf.Reset()
	require.NoError(t, Clients(&buf, nil))
	assert.Contains(t, buf.String(), "No clients configured")
}

func TestEmails(t *testing.T) {
	records := []model.BackupRecord{
		{UID: 1, Sender: "agent@acme.example", Subject: "Acme sauvegarde success", Date: time.Date(2024, 1, 5, 1, 0, 0, 0, time.Local)},
		{UID: 2, Sender: "agent@acme.example", Subject: "Acme sauvegarde success", RawDate: "not-a-date"},
		{UID: 3, Sender: "agent@globex.example", Subject: "Globex sauvegarde failed", Date: time.Date(2024, 1, 5, 2, 0, 0, 0, time.Local)},
	}

	var buf bytes.Buffer
	require.NoError(t, Emails(&buf, records, 1))

	out := buf.String()
	assert.Contains(t, out, "not-a-date")
	assert.Contains(t, out, "Globex sauvegarde failed")
	assert.Contains(t, out, "1. agent@acme.example (2)")
	assert.NotContains(t, out, "2. agent@globex.example")
}

func TestBackups(t *testing.T) {
	rows := []status.Row{
		{Client: model.Client{Name: "Acme"}, Record: model.BackupRecord{Subject: "Acme sauvegarde success", Date: time.Date(2024, 1, 5, 22, 15, 0, 0, time.Local)}, Verdict: status.Pass},
		{Client: model.Client{Name: "Globex"}, Verdict: status.Missing},
	}

	var buf bytes.Buffer
	require.NoError(t, Backups(&buf, time.Date(2024, 1, 5, 0, 0, 0, 0, time.Local), rows))

	out := buf.String()
	assert.Contains(t, out, "Backups of Friday, 05 January 2024")
	assert.Contains(t, out, "Acme sauvegarde success")
	assert.Contains(t, out, "Missing")
	assert.Contains(t, out, "1 ok, 0 warning, 0 failed, 1 missing")

	lines := strings.Split(out, "\n")
	var globex string
	for _, l := range lines {
		if strings.Contains(l, "Globex") {
			globex = l
		}
	}
	assert.Contains(t, globex, "Missing")
}

func TestIconAndStyled(t *testing.T) {
	assert.Equal(t, "✔", Icon(status.Pass))
	assert.Equal(t, "✘", Icon(status.Failure))
	assert.Equal(t, "?", Icon(status.Missing))
	assert.Equal(t, "subject", Styled(status.Warning, "subject"))
}
