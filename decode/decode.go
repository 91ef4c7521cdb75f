package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	gocharset "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/juanchiconsoli/email-monitor/model"
)

// DefaultKeyword is the subject keyword identifying backup notifications.
const DefaultKeyword = "sauvegarde"

var (
	// ErrSkip marks a message that is not a backup notification.
	ErrSkip = errors.New("message skipped")

	ErrNoSubject = fmt.Errorf("%w: subject header missing", ErrSkip)
	ErrNoKeyword = fmt.Errorf("%w: subject does not contain backup keyword", ErrSkip)
)

// Issue describes a non-fatal problem found while decoding a header field.
type Issue struct {
	Field string
	Value string
	Err   error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s %q: %v", i.Field, i.Value, i.Err)
}

func (i Issue) Unwrap() error {
	return i.Err
}

// Decoder turns raw RFC 5322 messages into backup records.
type Decoder struct {
	keyword string
	words   *mime.WordDecoder
}

// New returns a Decoder accepting subjects that contain keyword, compared
// case-insensitively. An empty keyword selects DefaultKeyword.
func New(keyword string) *Decoder {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &Decoder{
		keyword: strings.ToLower(keyword),
		words:   &mime.WordDecoder{CharsetReader: charsetReader},
	}
}

// Keyword returns the lower-cased backup keyword.
func (d *Decoder) Keyword() string {
	return d.keyword
}

// Decode extracts Subject, From and Date from raw. Messages that are not backup
// notifications yield an error wrapping ErrSkip. Undecodable header text and
// unparseable dates are reported as issues; the record is still returned.
func (d *Decoder) Decode(raw []byte) (model.BackupRecord, []Issue, error) {
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return model.BackupRecord{}, nil, fmt.Errorf("%w: read header: %v", ErrSkip, err)
	}

	if !header.Has("Subject") {
		return model.BackupRecord{}, nil, ErrNoSubject
	}

	var issues []Issue

	subject, err := d.Text(header.Get("Subject"))
	if err != nil {
		issues = append(issues, Issue{Field: "Subject", Value: header.Get("Subject"), Err: err})
	}
	if !strings.Contains(strings.ToLower(subject), d.keyword) {
		return model.BackupRecord{}, nil, ErrNoKeyword
	}

	sender, err := d.Text(header.Get("From"))
	if err != nil {
		issues = append(issues, Issue{Field: "From", Value: header.Get("From"), Err: err})
	}

	rawDate := strings.TrimSpace(header.Get("Date"))
	date, err := ParseDate(rawDate)
	if err != nil {
		issues = append(issues, Issue{Field: "Date", Value: rawDate, Err: err})
	}

	return model.BackupRecord{
		Subject: subject,
		Sender:  sender,
		Date:    date,
		RawDate: rawDate,
	}, issues, nil
}

// Text decodes a header value made of RFC 2047 encoded words and plain text.
// Each encoded word is converted from its declared charset; adjacent words are
// joined without the separating whitespace. On failure the raw value is returned
// together with the error.
func (d *Decoder) Text(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	decoded, err := d.words.DecodeHeader(value)
	if err != nil {
		return value, err
	}
	return decoded, nil
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
}

// ErrNoDate is returned by ParseDate for an empty Date header.
var ErrNoDate = errors.New("date header missing")

// ParseDate parses an email Date header, trying the RFC 5322 grammar first and a
// list of common layouts afterwards.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrNoDate
	}

	t, firstErr := mail.ParseDate(value)
	if firstErr == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date: %w", firstErr)
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if r, err := gocharset.Reader(charset, input); err == nil {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q: unsupported", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
