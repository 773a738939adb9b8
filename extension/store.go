package extension

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/store/bolt"
	"github.com/billbuddy/hourbank/store/memory"
	mongostore "github.com/billbuddy/hourbank/store/mongo"
	"github.com/billbuddy/hourbank/store/postgres"
	"github.com/billbuddy/hourbank/store/sqlite"
)

// openStore builds the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.Driver != "" && cfg.Driver != DriverMemory && cfg.DSN == "" {
		return nil, fmt.Errorf("hourbank: driver %q requires a dsn", cfg.Driver)
	}

	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil

	case DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN)

	case DriverBolt:
		return bolt.Open(cfg.DSN)

	case DriverPostgres:
		dsn, err := withSearchPath(cfg.DSN, cfg.Schema)
		if err != nil {
			return nil, err
		}
		return postgres.Open(ctx, dsn)

	case DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("hourbank: connect mongo: %w", err)
		}
		return mongostore.New(client, cfg.Database), nil

	default:
		return nil, fmt.Errorf("hourbank: unknown store driver %q", cfg.Driver)
	}
}

// withSearchPath adds a search_path runtime parameter to a PostgreSQL DSN
// in either URL or keyword/value form.
func withSearchPath(dsn, schema string) (string, error) {
	if schema == "" {
		return dsn, nil
	}
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("hourbank: parse postgres dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
