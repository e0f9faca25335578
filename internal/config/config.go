package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataDir       = "/home/tweetmap"
	defaultListenAddress = ":8080"

	defaultWorkerCount       = 3
	defaultCacheTTL          = 24 * time.Hour
	defaultJobTTL            = time.Hour
	defaultJobSweepInterval  = time.Minute
	defaultMaxTweets         = 500
	defaultWindowDays        = 180
	defaultPageSize          = 50
	defaultPageDelayMin      = 2 * time.Second
	defaultPageDelayMax      = 5 * time.Second
	defaultStatsBufSize      = 128
	defaultStoreBackend      = "sqlite"
	defaultDBFile            = "tweetmap.db"
	defaultSessionsDirectory = "sessions"
)

// JobConfiguration holds every runtime setting keyed by its lower-cased
// environment name. Components read it through the typed getters.
type JobConfiguration map[string]any

// ReadConfig loads DATA_DIR/.env when present and then reads the process
// environment.
func ReadConfig() JobConfiguration {
	jc := JobConfiguration{}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	jc["data_dir"] = dataDir

	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.Debugf("No env file in %s, reading from environment variables", dataDir)
		} else {
			logrus.Warnf("Failed reading env file: %v", err)
		}
	}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	jc["log_level"] = level.String()
	SetLogLevel(level)

	jc["listen_address"] = envString("LISTEN_ADDRESS", defaultListenAddress)

	jc["accounts_file"] = os.Getenv("ACCOUNTS_FILE")
	jc["twitter_accounts"] = envList("TWITTER_ACCOUNTS")
	jc["sessions_dir"] = envString("SESSIONS_DIR", filepath.Join(dataDir, defaultSessionsDirectory))
	jc["twitter_skip_login_verification"] = os.Getenv("TWITTER_SKIP_LOGIN_VERIFICATION") == "true"

	jc["worker_count"] = envInt("WORKER_COUNT", defaultWorkerCount, 1)
	jc["max_queued_jobs"] = envInt("MAX_QUEUED_JOBS", 0, 0)
	jc["stats_buf_size"] = envInt("STATS_BUF_SIZE", defaultStatsBufSize, 1)

	jc["cache_ttl"] = envSeconds("CACHE_TTL_SECONDS", defaultCacheTTL)
	jc["job_ttl"] = envSeconds("JOB_TTL_SECONDS", defaultJobTTL)
	jc["job_sweep_interval"] = envSeconds("JOB_SWEEP_INTERVAL_SECONDS", defaultJobSweepInterval)

	jc["max_tweets"] = envInt("MAX_TWEETS", defaultMaxTweets, 1)
	jc["window_days"] = envInt("WINDOW_DAYS", defaultWindowDays, 1)
	jc["page_size"] = envInt("PAGE_SIZE", defaultPageSize, 1)
	jc["page_delay_min"] = envMillis("PAGE_DELAY_MIN_MS", defaultPageDelayMin)
	jc["page_delay_max"] = envMillis("PAGE_DELAY_MAX_MS", defaultPageDelayMax)
	jc["feed_rps"] = envFloat("FEED_RPS", 0)

	jc["store_backend"] = strings.ToLower(envString("STORE_BACKEND", defaultStoreBackend))
	jc["db_path"] = envString("DB_PATH", filepath.Join(dataDir, defaultDBFile))
	jc["redis_url"] = os.Getenv("REDIS_URL")
	jc["return_stale_results"] = os.Getenv("RETURN_STALE_RESULTS") == "true"

	jc["rate_limit_rps"] = envFloat("RATE_LIMIT_RPS", 0)
	jc["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	return jc
}

func (jc JobConfiguration) DataDir() string {
	return jc.GetString("data_dir", defaultDataDir)
}

func (jc JobConfiguration) ListenAddress() string {
	return jc.GetString("listen_address", defaultListenAddress)
}

// GetInt safely extracts an int from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetInt(key string, def int) int {
	if v, ok := jc[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case uint:
			return int(val)
		case float64:
			return int(val)
		}
	}
	return def
}

// GetFloat safely extracts a float64 from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetFloat(key string, def float64) float64 {
	if v, ok := jc[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		}
	}
	return def
}

func (jc JobConfiguration) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := jc[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return def
}

func (jc JobConfiguration) GetString(key string, def string) string {
	if v, ok := jc[key]; ok {
		if val, ok := v.(string); ok {
			return val
		}
	}
	return def
}

// GetStringSlice safely extracts a string slice from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetStringSlice(key string, def []string) []string {
	if v, ok := jc[key]; ok {
		if val, ok := v.([]string); ok {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetBool(key string, def bool) bool {
	if v, ok := jc[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// AccountsConfig is what the account loader needs.
type AccountsConfig struct {
	File  string
	Pairs []string
}

func (jc JobConfiguration) GetAccountsConfig() AccountsConfig {
	return AccountsConfig{
		File:  jc.GetString("accounts_file", ""),
		Pairs: jc.GetStringSlice("twitter_accounts", []string{}),
	}
}

// TwitterConfig configures the twitter feed source.
type TwitterConfig struct {
	SessionsDir           string
	SkipLoginVerification bool
	RequestsPerSecond     float64
}

func (jc JobConfiguration) GetTwitterConfig() TwitterConfig {
	return TwitterConfig{
		SessionsDir:           jc.GetString("sessions_dir", filepath.Join(jc.DataDir(), defaultSessionsDirectory)),
		SkipLoginVerification: jc.GetBool("twitter_skip_login_verification", false),
		RequestsPerSecond:     jc.GetFloat("feed_rps", 0),
	}
}

// ScraperConfig bounds a single scrape.
type ScraperConfig struct {
	MaxTweets    int
	Window       time.Duration
	PageSize     int
	PageDelayMin time.Duration
	PageDelayMax time.Duration
}

func (jc JobConfiguration) GetScraperConfig() ScraperConfig {
	return ScraperConfig{
		MaxTweets:    jc.GetInt("max_tweets", defaultMaxTweets),
		Window:       time.Duration(jc.GetInt("window_days", defaultWindowDays)) * 24 * time.Hour,
		PageSize:     jc.GetInt("page_size", defaultPageSize),
		PageDelayMin: jc.GetDuration("page_delay_min", defaultPageDelayMin),
		PageDelayMax: jc.GetDuration("page_delay_max", defaultPageDelayMax),
	}
}

// JobServerConfig sizes the worker pool and the job table.
type JobServerConfig struct {
	Workers            int
	MaxQueuedJobs      int
	JobTTL             time.Duration
	SweepInterval      time.Duration
	CacheTTL           time.Duration
	ReturnStaleResults bool
}

func (jc JobConfiguration) GetJobServerConfig() JobServerConfig {
	return JobServerConfig{
		Workers:            jc.GetInt("worker_count", defaultWorkerCount),
		MaxQueuedJobs:      jc.GetInt("max_queued_jobs", 0),
		JobTTL:             jc.GetDuration("job_ttl", defaultJobTTL),
		SweepInterval:      jc.GetDuration("job_sweep_interval", defaultJobSweepInterval),
		CacheTTL:           jc.GetDuration("cache_ttl", defaultCacheTTL),
		ReturnStaleResults: jc.GetBool("return_stale_results", false),
	}
}

// StoreConfig selects and locates the persistent store.
type StoreConfig struct {
	Backend  string
	DBPath   string
	RedisURL string
}

func (jc JobConfiguration) GetStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:  jc.GetString("store_backend", defaultStoreBackend),
		DBPath:   jc.GetString("db_path", filepath.Join(jc.DataDir(), defaultDBFile)),
		RedisURL: jc.GetString("redis_url", ""),
	}
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		logrus.WithField("level", logLevel).Errorf("Invalid log level, setting to %s", logrus.InfoLevel)
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def, min int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min {
		logrus.Errorf("Error parsing %s=%q. Setting to default.", key, s)
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		logrus.Errorf("Error parsing %s=%q. Setting to default.", key, s)
		return def
	}
	return v
}

func envSeconds(key string, def time.Duration) time.Duration {
	secs := envInt(key, -1, 1)
	if secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func envMillis(key string, def time.Duration) time.Duration {
	ms := envInt(key, -1, 0)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
