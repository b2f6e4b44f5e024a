package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"
)

const (
	// DriverPureGo selects modernc.org/sqlite.
	DriverPureGo = "sqlite"

	// DriverCGo selects github.com/mattn/go-sqlite3.
	DriverCGo = "sqlite3"
)

const ruleSchema = `
CREATE TABLE IF NOT EXISTS gateway_rules (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	protocol       TEXT NOT NULL DEFAULT '',
	rule_order     INTEGER NOT NULL DEFAULT 0,
	filter_configs TEXT NOT NULL DEFAULT '[]',
	updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gateway_rules_order ON gateway_rules(rule_order, id);
`

// SQLiteConfig configures a SQLite rule store.
type SQLiteConfig struct {
	// Driver is DriverPureGo or DriverCGo.
	// Default: DriverPureGo
	Driver string

	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration
}

// SQLiteStore is a Store backed by a SQLite database. Filter configurations
// are stored as a JSON array next to the rule columns.
type SQLiteStore struct {
	db        *sql.DB
	driver    string
	logger    *slog.Logger
	closeOnce sync.Once

	getStmt  *sql.Stmt
	listStmt *sql.Stmt
	putStmt  *sql.Stmt
}

// NewSQLiteStore opens the database and creates the schema if needed.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, newStoreError("sqlite", "open", errors.New("path cannot be empty"))
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverPureGo
	}
	if cfg.Driver != DriverPureGo && cfg.Driver != DriverCGo {
		return nil, newStoreError("sqlite", "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, newStoreError("sqlite", "open", err)
	}
	// A single connection keeps ":memory:" databases shared and
	// serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:     db,
		driver: cfg.Driver,
		logger: slog.Default().With("component", "rule.store.sqlite"),
	}

	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite rule store initialized", "path", cfg.Path, "driver", cfg.Driver)
	return s, nil
}

func (s *SQLiteStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return newStoreError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(ruleSchema); err != nil {
		return newStoreError("sqlite", "create_schema", err)
	}

	var err error
	s.getStmt, err = s.db.Prepare(`
		SELECT id, name, protocol, rule_order, filter_configs
		FROM gateway_rules WHERE id = ?`)
	if err != nil {
		return newStoreError("sqlite", "prepare_get", err)
	}
	s.listStmt, err = s.db.Prepare(`
		SELECT id, name, protocol, rule_order, filter_configs
		FROM gateway_rules ORDER BY rule_order, id`)
	if err != nil {
		return newStoreError("sqlite", "prepare_list", err)
	}
	s.putStmt, err = s.db.Prepare(`
		INSERT INTO gateway_rules (id, name, protocol, rule_order, filter_configs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			protocol = excluded.protocol,
			rule_order = excluded.rule_order,
			filter_configs = excluded.filter_configs,
			updated_at = excluded.updated_at`)
	if err != nil {
		return newStoreError("sqlite", "prepare_put", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r       Rule
		configs string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Protocol, &r.Order, &configs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configs), &r.FilterConfigs); err != nil {
		return nil, fmt.Errorf("decode filter configs of rule %q: %w", r.ID, err)
	}
	return &r, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Rule, error) {
	r, err := scanRule(s.getStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, newStoreError("sqlite", "get", err)
	}
	return r, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, newStoreError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, newStoreError("sqlite", "list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("sqlite", "list", err)
	}
	// SQLite's text ordering is byte-wise, which matches Compare, but the
	// sort keeps the contract independent of collation settings.
	Sort(out)
	return out, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, r *Rule) error {
	if err := Validate(r); err != nil {
		return err
	}
	configs := r.FilterConfigs
	if configs == nil {
		configs = []FilterConfig{}
	}
	encoded, err := json.Marshal(configs)
	if err != nil {
		return newStoreError("sqlite", "put", err)
	}
	if _, err := s.putStmt.ExecContext(ctx, r.ID, r.Name, r.Protocol, r.Order, string(encoded), time.Now().Unix()); err != nil {
		return newStoreError("sqlite", "put", err)
	}
	return nil
}

// Close implements Store. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.getStmt, s.listStmt, s.putStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}
