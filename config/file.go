package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/spf13/viper"

	"github.com/juanchiconsoli/email-monitor/model"
)

// ErrInvalidConfig is returned for configuration files that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides, e.g. EMAIL_MONITOR_EMAIL_PASSWORD.
const EnvPrefix = "EMAIL_MONITOR"

const (
	DefaultServer        = "ssl0.ovh.net"
	DefaultIMAPPort      = 993
	DefaultSMTPPort      = 587
	DefaultFromName      = "Backup Monitor"
	DefaultReportSubject = "Sauvegardes {{date}}"
)

type Mailbox struct {
	Server             string `mapstructure:"server"`
	Email              string `mapstructure:"email"`
	Password           string `mapstructure:"password"`
	Port               int    `mapstructure:"port"`
	Folder             string `mapstructure:"folder"`
	TLS                bool   `mapstructure:"tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type ClientEntry struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

type Keywords struct {
	Backup  string   `mapstructure:"backup"`
	Pass    []string `mapstructure:"pass"`
	Warning []string `mapstructure:"warning"`
}

type SMTP struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type Report struct {
	To      []string `mapstructure:"to"`
	Subject string   `mapstructure:"subject"`
}

// SubjectFor expands {{date}} in the subject template.
func (r Report) SubjectFor(day time.Time) string {
	return strings.ReplaceAll(r.Subject, "{{date}}", day.Format("02-01-2006"))
}

// File is the JSON configuration holding the mailbox and the client registry.
type File struct {
	Email    Mailbox       `mapstructure:"email"`
	Clients  []ClientEntry `mapstructure:"clients"`
	Keywords Keywords      `mapstructure:"keywords"`
	SMTP     SMTP          `mapstructure:"smtp"`
	Report   Report        `mapstructure:"report"`

	path string
}

// Path returns the file the configuration was read from.
func (f *File) Path() string {
	return f.path
}

// ClientList returns the registered clients in file order.
func (f *File) ClientList() []model.Client {
	clients := make([]model.Client, 0, len(f.Clients))
	for _, c := range f.Clients {
		clients = append(clients, model.Client{Name: c.Name, Email: c.Email})
	}
	return clients
}

// PasswordLookup resolves a password for an account that has none in the file.
type PasswordLookup func(account string) (string, error)

// Load reads and validates the configuration file at path. Values may be
// overridden from the environment using EnvPrefix. A mailbox password absent
// from both is requested from lookup, which may be nil.
func Load(path string, lookup PasswordLookup) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("email.server", DefaultServer)
	v.SetDefault("email.email", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.port", DefaultIMAPPort)
	v.SetDefault("email.folder", "INBOX")
	v.SetDefault("email.tls", true)
	v.SetDefault("email.insecure_skip_verify", false)
	v.SetDefault("keywords.backup", "sauvegarde")
	v.SetDefault("smtp.server", "")
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", DefaultFromName)
	v.SetDefault("report.subject", DefaultReportSubject)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: %s not found", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}

	f := &File{}
	if err := v.UnmarshalExact(f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	f.path = path

	normalize(f)

	if f.Email.Password == "" && f.Email.Email != "" && lookup != nil {
		password, err := lookup(f.Email.Email)
		if err == nil {
			f.Email.Password = password
		}
	}
	if f.SMTP.Password == "" && f.SMTP.Username != "" && lookup != nil {
		if password, err := lookup(f.SMTP.Username); err == nil {
			f.SMTP.Password = password
		}
	}

	if err := validateFile(f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return f, nil
}

func normalize(f *File) {
	f.Email.Server = strings.TrimSpace(f.Email.Server)
	f.Email.Email = strings.TrimSpace(f.Email.Email)
	f.Email.Folder = strings.TrimSpace(f.Email.Folder)
	for i := range f.Clients {
		f.Clients[i].Email = strings.TrimSpace(f.Clients[i].Email)
	}
	f.SMTP.Server = strings.TrimSpace(f.SMTP.Server)
	if f.SMTP.From == "" {
		f.SMTP.From = f.SMTP.Username
	}
}

func validateFile(f *File) error {
	if f.Email.Server == "" {
		return fmt.Errorf("email.server is required")
	}
	if f.Email.Email == "" {
		return fmt.Errorf("email.email is required")
	}
	if f.Email.Password == "" {
		return fmt.Errorf("email.password is required (or store it with the password command)")
	}
	if f.Email.Port <= 0 || f.Email.Port > 65535 {
		return fmt.Errorf("email.port must be between 1 and 65535")
	}

	seen := make(map[string]bool, len(f.Clients))
	for i, c := range f.Clients {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("clients[%d].name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate client name %q", c.Name)
		}
		seen[c.Name] = true
		if c.Email == "" {
			return fmt.Errorf("clients[%d].email is required", i)
		}
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return fmt.Errorf("clients[%d].email %q: %v", i, c.Email, err)
		}
	}

	for _, to := range f.Report.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("report.to %q: %v", to, err)
		}
	}
	if len(f.Report.To) > 0 {
		if f.SMTP.Server == "" {
			return fmt.Errorf("smtp.server is required when report.to is set")
		}
		if f.SMTP.Port <= 0 || f.SMTP.Port > 65535 {
			return fmt.Errorf("smtp.port must be between 1 and 65535")
		}
		if _, err := mail.ParseAddress(f.SMTP.From); err != nil {
			return fmt.Errorf("smtp.from %q: %v", f.SMTP.From, err)
		}
	}

	return nil
}
