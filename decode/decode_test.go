package decode

import (
	"errors"
	"mime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func rawMessage(headers ...string) []byte {
	var msg string
	for _, h := range headers {
		msg += h + "\r\n"
	}
	return []byte(msg + "\r\nbody\r\n")
}

func TestDecode_PlainHeaders(t *testing.T) {
	d := New("")
	raw := rawMessage(
		"From: Backup Agent <agent@acme.example>",
		"Subject: Acme sauvegarde success",
		"Date: Fri, 05 Jan 2024 22:15:00 +0100",
	)

	rec, issues, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "Acme sauvegarde success", rec.Subject)
	assert.Equal(t, "Backup Agent <agent@acme.example>", rec.Sender)
	assert.Equal(t, "Fri, 05 Jan 2024 22:15:00 +0100", rec.RawDate)
	assert.True(t, rec.HasDate())
	assert.Equal(t, time.Date(2024, time.January, 5, 21, 15, 0, 0, time.UTC), rec.Date.UTC())
}

func TestDecode_EncodedWords(t *testing.T) {
	latin9, err := charmap.ISO8859_15.NewEncoder().String("sauvegarde réussie 5€")
	require.NoError(t, err)

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{
			name:    "iso-8859-15 quoted printable",
			subject: mime.QEncoding.Encode("iso-8859-15", latin9),
			want:    "sauvegarde réussie 5€",
		},
		{
			name:    "utf-8 base64",
			subject: mime.BEncoding.Encode("utf-8", "Globex sauvegarde succès"),
			want:    "Globex sauvegarde succès",
		},
		{
			name:    "mixed segments",
			subject: "Acme =?utf-8?q?sauvegarde?= =?utf-8?b?dGVybWluw6ll?=",
			want:    "Acme sauvegardeterminée",
		},
		{
			name:    "plain",
			subject: "Initech sauvegarde OK",
			want:    "Initech sauvegarde OK",
		},
	}

	d := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawMessage(
				"From: agent@example.com",
				"Subject: "+tt.subject,
				"Date: Fri, 05 Jan 2024 22:15:00 +0100",
			)
			rec, issues, err := d.Decode(raw)
			require.NoError(t, err)
			assert.Empty(t, issues)
			assert.Equal(t, tt.want, rec.Subject)
		})
	}
}

func TestDecode_Skips(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{
			name:    "no subject",
			raw:     rawMessage("From: a@example.com", "Date: Fri, 05 Jan 2024 22:15:00 +0100"),
			wantErr: ErrNoSubject,
		},
		{
			name:    "no keyword",
			raw:     rawMessage("From: a@example.com", "Subject: Invoice 42"),
			wantErr: ErrNoKeyword,
		},
	}

	d := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := d.Decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrSkip)
		})
	}
}

func TestDecode_KeywordIsCaseInsensitive(t *testing.T) {
	d := New("Backup")
	rec, _, err := d.Decode(rawMessage("Subject: ACME BACKUP done", "Date: Fri, 05 Jan 2024 22:15:00 +0100"))
	require.NoError(t, err)
	assert.Equal(t, "ACME BACKUP done", rec.Subject)
	assert.Equal(t, "backup", d.Keyword())
}

func TestDecode_MalformedDateKeepsRawValue(t *testing.T) {
	d := New("")
	rec, issues, err := d.Decode(rawMessage("Subject: Acme sauvegarde success", "Date: not-a-date"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Date", issues[0].Field)
	assert.False(t, rec.HasDate())
	assert.Equal(t, "not-a-date", rec.RawDate)
}

func TestDecode_MissingDate(t *testing.T) {
	d := New("")
	rec, issues, err := d.Decode(rawMessage("Subject: Acme sauvegarde success"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.True(t, errors.Is(issues[0], ErrNoDate))
	assert.False(t, rec.HasDate())
}

func TestDecode_UnknownCharsetReportsIssue(t *testing.T) {
	d := New("")
	subject := "=?x-unknown-charset?Q?Acme_sauvegarde?="
	rec, issues, err := d.Decode(rawMessage("Subject: "+subject+" sauvegarde", "Date: Fri, 05 Jan 2024 22:15:00 +0100"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Subject", issues[0].Field)
	assert.Equal(t, subject+" sauvegarde", rec.Subject)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc 5322",
			value: "Mon, 02 Jan 2006 15:04:05 -0700",
			want:  time.Date(2006, time.January, 2, 22, 4, 5, 0, time.UTC),
		},
		{
			name:  "without weekday",
			value: "2 Jan 2006 15:04:05 +0000",
			want:  time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name:  "rfc 3339 fallback",
			value: "2006-01-02T15:04:05Z",
			want:  time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name:    "garbage",
			value:   "not-a-date",
			wantErr: true,
		},
		{
			name:    "empty",
			value:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}
