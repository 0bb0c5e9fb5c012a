package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"os"
	"strings"

	"github.com/lumenforge/lumenforge-web/internal/log"
)

// EnvPrefix is prepended to the upper-cased flag name, e.g. LFWEB_HTTP_PORT.
const EnvPrefix = "LFWEB_"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	TrustedHops int
	EnablePprof bool

	EnableTracing bool
	OTLPEndpoint  string
	TraceSample   float64

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	PyroUser        string
	PyroPassword    string

	RateLimitBackend string
	RateLimitMaxKeys int
	LimitsFile       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTo       string

	ArchiveS3Bucket string
	ArchiveS3Prefix string
	ArchiveKMSKeyID string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "reverse proxies in front of the server whose X-Forwarded-For is trusted (0..5)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.PyroUser, "pyro-user", "", "basic auth user for pyro-server")
	fs.StringVar(&c.PyroPassword, "pyro-password", "", "basic auth password for pyro-server (or ssm:/param/name)")

	fs.StringVar(&c.RateLimitBackend, "ratelimit-backend", BackendMemory, "rate limit counter store: memory|redis")
	fs.IntVar(&c.RateLimitMaxKeys, "ratelimit-max-keys", 100000, "max identifiers tracked per tier in process (0 = unlimited)")
	fs.StringVar(&c.LimitsFile, "limits-file", "", "YAML file overriding rate limit tier window/max")
	fs.StringVar(&c.RedisAddr, "redis-addr", "localhost:6379", "redis host:port for the redis rate limit backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password (or ssm:/param/name)")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")

	fs.StringVar(&c.SMTPHost, "smtp-host", "", "SMTP relay host; empty disables mail delivery")
	fs.IntVar(&c.SMTPPort, "smtp-port", 587, "SMTP relay port")
	fs.StringVar(&c.SMTPUsername, "smtp-username", "", "SMTP auth user")
	fs.StringVar(&c.SMTPPassword, "smtp-password", "", "SMTP auth password (or ssm:/param/name)")
	fs.StringVar(&c.MailFrom, "mail-from", "", "From address for submission mail")
	fs.StringVar(&c.MailTo, "mail-to", "", "comma separated recipients for submission mail")

	fs.StringVar(&c.ArchiveS3Bucket, "archive-s3-bucket", "", "s3 bucket to archive submissions to; empty disables archiving")
	fs.StringVar(&c.ArchiveS3Prefix, "archive-s3-prefix", "submissions", "s3 key prefix for archived submissions")
	fs.StringVar(&c.ArchiveKMSKeyID, "archive-kms-key-id", "", "KMS key id/ARN for SSE-KMS on archived submissions")
}

// MailRecipients splits MailTo on commas, dropping empty entries.
func (c App) MailRecipients() []string {
	var out []string
	for _, s := range strings.Split(c.MailTo, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 5 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..5)", c.TrustedHops))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
		if (c.PyroUser == "") != (c.PyroPassword == "") {
			errs = append(errs, fmt.Errorf("PYRO_USER and PYRO_PASSWORD must be set together"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Rate limiting
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("invalid REDIS_DB %d", c.RedisDB))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_BACKEND %q (must be %s|%s)", c.RateLimitBackend, BackendMemory, BackendRedis))
	}
	if c.RateLimitMaxKeys < 0 {
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_MAX_KEYS %d (must be >= 0)", c.RateLimitMaxKeys))
	}

	// Mail delivery
	if c.SMTPHost != "" {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT %d (must be 1..65535)", c.SMTPPort))
		}
		if _, err := mail.ParseAddress(c.MailFrom); err != nil {
			errs = append(errs, fmt.Errorf("MAIL_FROM must be an address when SMTP_HOST is set (got %q)", c.MailFrom))
		}
		rcpts := c.MailRecipients()
		if len(rcpts) == 0 {
			errs = append(errs, fmt.Errorf("MAIL_TO required when SMTP_HOST is set"))
		}
		for _, r := range rcpts {
			if _, err := mail.ParseAddress(r); err != nil {
				errs = append(errs, fmt.Errorf("MAIL_TO entry %q is not an address", r))
			}
		}
	}

	// Archive
	if c.ArchiveKMSKeyID != "" && c.ArchiveS3Bucket == "" {
		errs = append(errs, fmt.Errorf("ARCHIVE_KMS_KEY_ID set without ARCHIVE_S3_BUCKET"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
