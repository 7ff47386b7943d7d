package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "15m" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config carries everything the composition roots need. Values come from an
// optional YAML file and can be overridden per field by environment variables,
// so a single image works in compose, k8s and local runs.
type Config struct {
	Infra struct {
		MySQL struct {
			Addr     string `yaml:"addr"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers string `yaml:"brokers"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
		Zookeeper struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Auth struct {
		SigningKey string   `yaml:"signing_key"`
		AccessTTL  Duration `yaml:"access_ttl"`
		RefreshTTL Duration `yaml:"refresh_ttl"`
	} `yaml:"auth"`

	Order struct {
		ReservationTTL Duration `yaml:"reservation_ttl"`
		SweepInterval  Duration `yaml:"sweep_interval"`
		DiscountRule   string   `yaml:"discount_rule"`
	} `yaml:"order"`
}

// Load reads the YAML file at path (skipped when path is empty or missing)
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Infra.MySQL.Addr = "localhost:3306"
	cfg.Infra.MySQL.User = "root"
	cfg.Infra.MySQL.Database = "atelier"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Addrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Zookeeper.Addrs = "localhost:2181"
	cfg.Auth.AccessTTL = Duration(15 * time.Minute)
	cfg.Auth.RefreshTTL = Duration(7 * 24 * time.Hour)
	cfg.Order.ReservationTTL = Duration(15 * time.Minute)
	cfg.Order.SweepInterval = Duration(time.Minute)
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Infra.MySQL.Addr = getEnv("MYSQL_ADDR", cfg.Infra.MySQL.Addr)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.Addrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Zookeeper.Addrs = getEnv("ZOOKEEPER_ADDRS", cfg.Infra.Zookeeper.Addrs)
	cfg.Auth.SigningKey = getEnv("AUTH_SIGNING_KEY", cfg.Auth.SigningKey)
	if v := os.Getenv("RESERVATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Order.ReservationTTL = Duration(d)
		}
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Order.SweepInterval = Duration(d)
		}
	}
}

// KafkaBrokers returns the broker list split from the comma-joined form used
// in config and env.
func (c *Config) KafkaBrokers() []string {
	return strings.Split(c.Infra.Kafka.Brokers, ",")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
