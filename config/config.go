package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// EnvConfigPath names the environment variable consulted when --config is unset.
const EnvConfigPath = "EMAIL_MONITOR_CONFIG"

const DefaultConfigPath = "./clients.json"

// Options captures the runtime options shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogDir     string
	Timeout    time.Duration
	// MboxPath replaces the IMAP server with a local mbox archive when set.
	MboxPath string
}

// RegisterFlags attaches the persistent CLI flags to the root command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to the JSON configuration (falls back to "+EnvConfigPath+", then "+DefaultConfigPath+")")
	flags.String("log-level", "warn", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Duration("timeout", 15*time.Second, "Timeout for connecting to and reading from the mail server")
	flags.String("mbox", "", "Read messages from this mbox archive instead of the IMAP server")
}

// LoadOptions converts the parsed Cobra flags into Options with validation.
func LoadOptions(cmd *cobra.Command) (Options, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return Options{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Options{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Options{}, err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return Options{}, err
	}
	mboxPath, err := flags.GetString("mbox")
	if err != nil {
		return Options{}, err
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	opts := Options{
		ConfigPath: ResolvePath(configPath),
		LogLevel:   logLevel,
		LogDir:     logDir,
		Timeout:    timeout,
		MboxPath:   strings.TrimSpace(mboxPath),
	}
	if opts.LogDir != "" {
		opts.LogDir = filepath.Clean(opts.LogDir)
	}

	if err := validateOptions(opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// ResolvePath picks the configuration file: the flag value, then the
// environment, then the default path.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

func validateOptions(opts Options) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", opts.LogLevel)
	}

	return nil
}
