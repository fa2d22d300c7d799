package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/pkg/logging"
)

const Production = "production"

const (
	SavePolicyExplicit  = "explicit"
	SavePolicyImmediate = "immediate"

	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. Files that
// are missing there are looked up in the nearest parent holding a go.mod, so
// tests running inside package directories pick up the repo-level files.
func LoadEnv(envFiles []string) (int, error) {
	root := moduleRoot()
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		switch {
		case fs.FileExists(file):
			existingFiles = append(existingFiles, file)
		case root != "" && fs.FileExists(filepath.Join(root, file)):
			existingFiles = append(existingFiles, filepath.Join(root, file))
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"workflow_console"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"workflow-console"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

// WorkflowOptions tune the assignment editor.
type WorkflowOptions struct {
	SavePolicy        string        `env:"WORKFLOW_SAVE_POLICY" envDefault:"explicit"`
	Storage           string        `env:"WORKFLOW_STORAGE" envDefault:"postgres"`
	SearchMinLength   int           `env:"WORKFLOW_SEARCH_MIN_LENGTH" envDefault:"3"`
	SearchDebounce    time.Duration `env:"WORKFLOW_SEARCH_DEBOUNCE" envDefault:"400ms"`
	SearchLimit       int           `env:"WORKFLOW_SEARCH_LIMIT" envDefault:"20"`
	CatalogCacheTTL   time.Duration `env:"WORKFLOW_CATALOG_CACHE_TTL" envDefault:"0s"`
	RequestTimeout    time.Duration `env:"WORKFLOW_REQUEST_TIMEOUT" envDefault:"10s"`
	SessionIdleTTL    time.Duration `env:"WORKFLOW_SESSION_IDLE_TTL" envDefault:"30m"`
	MaxSessions       int           `env:"WORKFLOW_MAX_SESSIONS" envDefault:"1000"`
	FixturesPath      string        `env:"WORKFLOW_FIXTURES_PATH" envDefault:"fixtures/workflow.yaml"`
	SchemaMigrateAuto bool          `env:"WORKFLOW_MIGRATE_ON_START" envDefault:"false"`
}

func (w *WorkflowOptions) Validate() error {
	w.SavePolicy = strings.ToLower(strings.TrimSpace(w.SavePolicy))
	switch w.SavePolicy {
	case SavePolicyExplicit, SavePolicyImmediate:
	default:
		return fmt.Errorf("invalid WORKFLOW_SAVE_POLICY=%q (expected explicit|immediate)", w.SavePolicy)
	}
	w.Storage = strings.ToLower(strings.TrimSpace(w.Storage))
	switch w.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid WORKFLOW_STORAGE=%q (expected postgres|memory)", w.Storage)
	}
	if w.SearchMinLength < 1 {
		return fmt.Errorf("WORKFLOW_SEARCH_MIN_LENGTH must be at least 1, got %d", w.SearchMinLength)
	}
	if w.SearchDebounce < 0 {
		return fmt.Errorf("WORKFLOW_SEARCH_DEBOUNCE must be non-negative, got %s", w.SearchDebounce)
	}
	if w.SearchLimit <= 0 || w.SearchLimit > 100 {
		return fmt.Errorf("WORKFLOW_SEARCH_LIMIT must be within 1..100, got %d", w.SearchLimit)
	}
	if w.MaxSessions <= 0 {
		return fmt.Errorf("WORKFLOW_MAX_SESSIONS must be positive, got %d", w.MaxSessions)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	Workflow      WorkflowOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Domain           string `env:"DOMAIN" envDefault:"localhost"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	CorsOrigins      string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Looked up on every request; a random uuid is used when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Falls back to request.RemoteAddr when absent.
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Editor session id header for the workflow API.
	SessionHeader string `env:"SESSION_HEADER" envDefault:"X-Editor-Session"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Scheme() string {
	if c.GoAppEnvironment == Production { // assume 'https' on production mode
		return "https"
	}
	return "http"
}

func (c *Configuration) CorsOriginList() []string {
	var out []string
	for _, part := range strings.Split(c.CorsOrigins, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := c.parse(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	return nil
}

// parse fills c from the process environment and validates it. It does not
// touch log files, so tests can call it directly.
func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow configuration error: %w", err)
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	if os.Getenv("ORIGIN") == "" {
		// Only development origins carry the port.
		if c.GoAppEnvironment == "development" {
			c.Origin = fmt.Sprintf("%s://%s:%d", c.Scheme(), c.Domain, c.ServerPort)
		} else {
			c.Origin = fmt.Sprintf("%s://%s", c.Scheme(), c.Domain)
		}
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
