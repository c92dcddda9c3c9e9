package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("settings: not found")

// Store is the tenant-scoped key/value API used by the rest of the service.
//
// Keys are namespaced per tenant as "{clientKey}:{name}". ScanKeys and
// Delete operate on full keys so uninstall cleanup can enumerate
// everything a tenant ever stored. No multi-key transactional guarantees
// are assumed or provided.
type Store interface {
	Get(ctx context.Context, name, clientKey string) ([]byte, error)
	Set(ctx context.Context, name string, value []byte, clientKey string) error

	// ScanKeys returns every full key matching a redis-style glob
	// pattern, e.g. "*:clientInfo" or "{clientKey}:*".
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes a full key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// ClientInfoName is the well-known setting every installed tenant has;
// the broadcast sweep discovers tenants by scanning for it.
const ClientInfoName = "clientInfo"

// Key builds the full storage key for a tenant-scoped name.
func Key(clientKey, name string) string { return clientKey + ":" + name }

// SplitKey returns the clientKey portion of a full key.
func SplitKey(key string) (clientKey, name string) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// Config configures the settings store.
//
// Driver values:
//   - "redis":  shared Redis instance (production)
//   - "sqlite": local SQLite database file
//   - "memory": in-process map (tests, development)
type Config struct {
	Driver string `yaml:"driver"`

	// Redis driver.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// SQLite driver.
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"-"`
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "redis":
		return openRedis(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown settings driver: " + cfg.Driver)
	}
}

// GetJSON reads a tenant-scoped value and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, name, clientKey string, v any) error {
	b, err := s.Get(ctx, name, clientKey)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// SetJSON marshals v and stores it under the tenant-scoped name.
func SetJSON(ctx context.Context, s Store, name string, v any, clientKey string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, name, b, clientKey)
}
