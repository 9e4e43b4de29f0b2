package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DateLayout is the format of configured calendar dates
const DateLayout = "2006-01-02"

// DataPaths holds the locally cached artifacts. Empty file paths derive from DataDir.
type DataPaths struct {
	DataDir      string `mapstructure:"data_dir" validate:"required"`
	TagData      string `mapstructure:"tag_data"`
	GroupList    string `mapstructure:"group_list"`
	NoGroup      string `mapstructure:"no_group"`
	GeoCache     string `mapstructure:"geo_cache"`
	GeoErrors    string `mapstructure:"geo_errors"`
	Ledger       string `mapstructure:"ledger"`
	ExploitsFile string `mapstructure:"exploits_file"`
}

// Config holds all configuration for afdata
type Config struct {
	API struct {
		Hostname          string        `mapstructure:"hostname" validate:"required"`
		Timeout           time.Duration `mapstructure:"timeout"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"min=0"`
		Burst             int           `mapstructure:"burst" validate:"min=0"`
	} `mapstructure:"api"`

	Search struct {
		QueryType         string        `mapstructure:"query_type" validate:"oneof=hash threat query autofocus"`
		HashType          string        `mapstructure:"hash_type" validate:"oneof=md5 sha1 sha256"`
		InputFile         string        `mapstructure:"input_file"`
		QueryFile         string        `mapstructure:"query_file"`
		ThreatWindowStart string        `mapstructure:"threat_window_start"`
		ThreatWindowEnd   string        `mapstructure:"threat_window_end"`
		PageSize          int           `mapstructure:"page_size" validate:"min=1,max=4000"`
		ChunkSize         int           `mapstructure:"chunk_size" validate:"min=1,max=1000"`
		PollInterval      time.Duration `mapstructure:"poll_interval"`
		StallThreshold    int           `mapstructure:"stall_threshold"`
		MaxPolls          int           `mapstructure:"max_polls"`
		Retry             struct {
			MaxAttempts    uint64        `mapstructure:"max_attempts"`
			InitialBackoff time.Duration `mapstructure:"initial_backoff"`
			MaxBackoff     time.Duration `mapstructure:"max_backoff"`
		} `mapstructure:"retry"`
	} `mapstructure:"search"`

	Output struct {
		BulkDir      string `mapstructure:"bulk_dir" validate:"required"`
		PrettyDir    string `mapstructure:"pretty_dir" validate:"required"`
		HashIndex    string `mapstructure:"hash_index" validate:"required"`
		SessionIndex string `mapstructure:"session_index" validate:"required"`
		ElasticURL   string `mapstructure:"elastic_url" validate:"required"`
	} `mapstructure:"output"`

	Enrich struct {
		SigCoverage     bool `mapstructure:"sig_coverage"`
		OnlySigs        bool `mapstructure:"only_sigs"`
		CoverageWorkers int  `mapstructure:"coverage_workers" validate:"min=1,max=32"`
		Exploits        bool `mapstructure:"exploits"`
	} `mapstructure:"enrich"`

	DataPaths DataPaths `mapstructure:"data_paths"`

	Stats struct {
		Start         string   `mapstructure:"start"`
		End           string   `mapstructure:"end"`
		IntervalDays  int      `mapstructure:"interval_days" validate:"min=1"`
		OutJSON       string   `mapstructure:"out_json" validate:"required"`
		OutCSV        string   `mapstructure:"out_csv" validate:"required"`
		Role          string   `mapstructure:"role"`
		UploadSources []string `mapstructure:"upload_sources"`
		TagGroups     []string `mapstructure:"tag_groups"`
	} `mapstructure:"stats"`

	Geo struct {
		URL             string        `mapstructure:"url" validate:"required,url"`
		Timeout         time.Duration `mapstructure:"timeout"`
		CacheSize       int           `mapstructure:"cache_size" validate:"min=1"`
		BreakerFailures int           `mapstructure:"breaker_failures"`
		BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	} `mapstructure:"geo"`

	Secrets struct {
		Provider string `mapstructure:"provider" validate:"oneof=env vault aws"`
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

// ValidationError reports a configuration problem detected before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a configuration problem
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.hostname", "autofocus.paloaltonetworks.com")
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("api.requests_per_second", 2)
	v.SetDefault("api.burst", 1)

	v.SetDefault("search.query_type", "hash")
	v.SetDefault("search.hash_type", "sha256")
	v.SetDefault("search.input_file", "hash_list.txt")
	v.SetDefault("search.query_file", "")
	v.SetDefault("search.threat_window_start", "2018-06-01T00:00:00")
	v.SetDefault("search.threat_window_end", "2018-08-08T23:59:59")
	v.SetDefault("search.page_size", 4000)
	v.SetDefault("search.chunk_size", 1000)
	v.SetDefault("search.poll_interval", 5*time.Second)
	v.SetDefault("search.stall_threshold", 9)
	v.SetDefault("search.max_polls", 0)
	v.SetDefault("search.retry.max_attempts", 10) // 0 = retry forever
	v.SetDefault("search.retry.initial_backoff", 2*time.Second)
	v.SetDefault("search.retry.max_backoff", time.Minute)

	v.SetDefault("output.bulk_dir", "out_estack")
	v.SetDefault("output.pretty_dir", "out_pretty")
	v.SetDefault("output.hash_index", "hash-data")
	v.SetDefault("output.session_index", "session-data")
	v.SetDefault("output.elastic_url", "localhost:9200")

	v.SetDefault("enrich.sig_coverage", false)
	v.SetDefault("enrich.only_sigs", false)
	v.SetDefault("enrich.coverage_workers", 1)
	v.SetDefault("enrich.exploits", false)

	v.SetDefault("data_paths.data_dir", "./data")
	v.SetDefault("data_paths.tag_data", "")
	v.SetDefault("data_paths.group_list", "")
	v.SetDefault("data_paths.no_group", "")
	v.SetDefault("data_paths.geo_cache", "")
	v.SetDefault("data_paths.geo_errors", "")
	v.SetDefault("data_paths.ledger", "")
	v.SetDefault("data_paths.exploits_file", "exploits.csv")

	v.SetDefault("stats.start", "2019-10-01")
	v.SetDefault("stats.end", "")
	v.SetDefault("stats.interval_days", 1)
	v.SetDefault("stats.out_json", "tag_group_stats_json")
	v.SetDefault("stats.out_csv", "tag_group_stats_csv")
	v.SetDefault("stats.role", "standard")
	v.SetDefault("stats.upload_sources", []string{})
	v.SetDefault("stats.tag_groups", []string{})

	v.SetDefault("geo.url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geo.timeout", 10*time.Second)
	v.SetDefault("geo.cache_size", 512)
	v.SetDefault("geo.breaker_failures", 5)
	v.SetDefault("geo.breaker_cooldown", time.Minute)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.vault.path", "secret/afdata")
	v.SetDefault("secrets.aws.secret_id", "afdata/secrets")

	v.SetDefault("metrics.addr", "")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("AFDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// shorter names for the settings changed most often
	_ = v.BindEnv("data_paths.data_dir", "AFDATA_DATA_DIR")
	_ = v.BindEnv("search.query_type", "AFDATA_QUERY_TYPE")
	_ = v.BindEnv("search.hash_type", "AFDATA_HASH_TYPE")
	_ = v.BindEnv("search.input_file", "AFDATA_INPUT_FILE")
	_ = v.BindEnv("output.elastic_url", "AFDATA_ELASTIC_URL")
	_ = v.BindEnv("secrets.provider", "AFDATA_SECRETS_PROVIDER")
}

// LoadConfig loads configuration from path, or from config.yaml in . or ./config when path
// is empty, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	loadFromEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.ResolveDataPaths()

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ResolveDataPaths derives every unset cache path from DataDir
func (c *Config) ResolveDataPaths() {
	p := &c.DataPaths
	if p.DataDir == "" {
		p.DataDir = "./data"
	}
	resolve := func(field *string, name string) {
		if *field == "" {
			*field = filepath.Join(p.DataDir, name)
		} else {
			*field = filepath.Clean(*field)
		}
	}
	resolve(&p.TagData, "tagdata.json")
	resolve(&p.GroupList, "groupList.txt")
	resolve(&p.NoGroup, "noGroupTags.txt")
	resolve(&p.GeoCache, "country_cache.csv")
	resolve(&p.GeoErrors, "geo_errors.csv")
	resolve(&p.Ledger, "afdata.db")
}

// ThreatWindow returns the create_date window for threat name searches
func (c *Config) ThreatWindow() [2]string {
	return [2]string{c.Search.ThreatWindowStart, c.Search.ThreatWindowEnd}
}

// StatsRange parses the configured statistics dates. A missing end defaults to today.
func (c *Config) StatsRange(now time.Time) (start, end time.Time, err error) {
	start, err = time.Parse(DateLayout, c.Stats.Start)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "stats.start", Message: "must be a YYYY-MM-DD date"}
	}
	if c.Stats.End == "" {
		y, m, d := now.Date()
		return start, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	end, err = time.Parse(DateLayout, c.Stats.End)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "stats.end", Message: "must be a YYYY-MM-DD date"}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "stats.end", Message: "is before stats.start"}
	}
	return start, end, nil
}

// validateConfig applies the struct tag rules and the cross-field checks
func validateConfig(config *Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := validate.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: describe(fe),
			}
		}
		return &ValidationError{Message: err.Error()}
	}

	if config.Enrich.OnlySigs && !config.Enrich.SigCoverage {
		return &ValidationError{Field: "enrich.only_sigs", Message: "requires enrich.sig_coverage"}
	}
	switch config.Secrets.Provider {
	case "vault":
		if config.Secrets.Vault.Address == "" {
			return &ValidationError{Field: "secrets.vault.address", Message: "is required for the vault provider"}
		}
	case "aws":
		if config.Secrets.AWS.Region == "" {
			return &ValidationError{Field: "secrets.aws.region", Message: "is required for the aws provider"}
		}
	}
	if config.Search.Retry.MaxBackoff > 0 && config.Search.Retry.MaxBackoff < config.Search.Retry.InitialBackoff {
		return &ValidationError{Field: "search.retry.max_backoff", Message: "must not be below search.retry.initial_backoff"}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%q is not one of [%s]", fmt.Sprint(fe.Value()), fe.Param())
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
