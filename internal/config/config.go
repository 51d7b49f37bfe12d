package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"aiscam-svr/internal/geometry"
	"aiscam-svr/internal/scheduler"
)

const envPrefix = "AISCAM"

type Observer struct {
	Lat     float64 `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `mapstructure:"lon" validate:"gte=-180,lte=180"`
	Bearing float64 `mapstructure:"bearing" validate:"gte=0,lt=360"`
}

type Geometry struct {
	MinSpeed float64 `mapstructure:"minSpeed" validate:"gte=0"`
}

type Capture struct {
	Warmup       time.Duration `mapstructure:"warmup" validate:"gte=0"`
	ShutterDelay time.Duration `mapstructure:"shutterDelay" validate:"gte=0"`
}

type Scheduler struct {
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
	Cooldown time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

type Cache struct {
	Backend string        `mapstructure:"backend" validate:"oneof=none redis sqlite postgres"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type Redis struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db" validate:"gte=0"`
}

type SQLite struct {
	Path string `mapstructure:"path"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type Camera struct {
	GRPCAddr string        `mapstructure:"grpcAddr"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type Link struct {
	ProxyAddr string `mapstructure:"proxyAddr"`
}

type Influx struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

type RawLog struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	TCPPort     string `mapstructure:"tcpPort" validate:"required,numeric"`
	MetricsPort string `mapstructure:"metricsPort" validate:"required,numeric"`
	LogLevel    string `mapstructure:"logLevel" validate:"oneof=debug info warn warning error"`

	Observer  Observer  `mapstructure:"observer"`
	Geometry  Geometry  `mapstructure:"geometry"`
	Capture   Capture   `mapstructure:"capture"`
	Scheduler Scheduler `mapstructure:"scheduler"`

	Cache    Cache    `mapstructure:"cache"`
	Redis    Redis    `mapstructure:"redis"`
	SQLite   SQLite   `mapstructure:"sqlite"`
	Postgres Postgres `mapstructure:"postgres"`

	Camera Camera `mapstructure:"camera"`
	Link   Link   `mapstructure:"link"`
	Influx Influx `mapstructure:"influx"`
	RawLog RawLog `mapstructure:"rawlog"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(backendFields, Config{})
	return v
}

// backendFields requires the connection setting of the selected cache backend.
func backendFields(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	switch c.Cache.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			sl.ReportError(c.Redis.Addr, "Redis.Addr", "Addr", "required_for_backend", "redis")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			sl.ReportError(c.Postgres.DSN, "Postgres.DSN", "DSN", "required_for_backend", "postgres")
		}
	}
	if c.Influx.URL != "" && c.Influx.Bucket == "" {
		sl.ReportError(c.Influx.Bucket, "Influx.Bucket", "Bucket", "required_with_url", "")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcpPort", "10110")
	v.SetDefault("metricsPort", "9000")
	v.SetDefault("logLevel", "info")

	v.SetDefault("observer.lat", 0.0)
	v.SetDefault("observer.lon", 0.0)
	v.SetDefault("observer.bearing", 0.0)

	v.SetDefault("geometry.minSpeed", geometry.DefaultMinSpeed)

	v.SetDefault("capture.warmup", "1s")
	v.SetDefault("capture.shutterDelay", "1s")

	v.SetDefault("scheduler.window", "60s")
	v.SetDefault("scheduler.cooldown", "60s")

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("sqlite.path", "aiscam.db")
	v.SetDefault("postgres.dsn", "")

	v.SetDefault("camera.grpcAddr", "")
	v.SetDefault("camera.timeout", "5s")

	v.SetDefault("link.proxyAddr", "")

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "ais")

	v.SetDefault("rawlog.dir", "")
}

// Load builds the configuration from defaults, the optional file at path
// (YAML or JSON by extension) and AISCAM_* environment variables, in
// increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GeoObserver is the camera as seen by the crossing predictor.
func (c Config) GeoObserver() geometry.Observer {
	return geometry.Observer{
		Lat:      c.Observer.Lat,
		Lon:      c.Observer.Lon,
		Bearing:  c.Observer.Bearing,
		MinSpeed: c.Geometry.MinSpeed,
	}
}

func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Observer:     c.GeoObserver(),
		Warmup:       c.Capture.Warmup,
		ShutterDelay: c.Capture.ShutterDelay,
		Window:       c.Scheduler.Window,
		Cooldown:     c.Scheduler.Cooldown,
	}
}
