package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:3306", cfg.Infra.MySQL.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Order.ReservationTTL.Std())
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers())
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
infra:
  mysql:
    addr: db:3306
  kafka:
    brokers: kafka-1:9092,kafka-2:9092
order:
  reservation_ttl: 5m
  discount_rule: 'total >= 100000 ? total / 20 : 0'
`), 0o600))

	t.Setenv("MYSQL_ADDR", "other-db:3306")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other-db:3306", cfg.Infra.MySQL.Addr, "env wins over file")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, 5*time.Minute, cfg.Order.ReservationTTL.Std())
	assert.NotEmpty(t, cfg.Order.DiscountRule)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load("/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Infra.Redis.Addrs)
}
