package version

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/i-m-c/go-inheritance/internal/codec"
)

// DefaultDecodedCacheSize is the number of decoded snapshots SQLiteStore
// keeps in memory when no size is configured.
const DefaultDecodedCacheSize = 512

const schema = `
CREATE TABLE IF NOT EXISTS versions (
	project    TEXT    NOT NULL,
	number     INTEGER NOT NULL,
	created_ns INTEGER NOT NULL,
	digest     TEXT    NOT NULL,
	snapshot   BLOB    NOT NULL,
	PRIMARY KEY (project, number)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS stable (
	project TEXT    PRIMARY KEY,
	number  INTEGER NOT NULL
) WITHOUT ROWID;
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA temp_store=MEMORY",
}

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// PoolSize is the number of connections. Zero means max(4, NumCPU).
	PoolSize int

	// CacheSize bounds the decoded-snapshot cache. Zero means
	// DefaultDecodedCacheSize.
	CacheSize int

	// Codec encodes snapshots. Nil means codec.Default().
	Codec *codec.Codec

	// Logger receives open/close events. Nil discards.
	Logger *slog.Logger
}

// SQLiteStore is a durable Store backed by a SQLite database in WAL mode.
//
// Snapshots are stored as deterministic CBOR. Decoded snapshots are cached
// in an LRU keyed by project and number; versions are immutable, so cached
// entries never go stale.
type SQLiteStore struct {
	pool    *sqlitex.Pool
	codec   *codec.Codec
	decoded *lru.Cache[string, ValueMap]
	logger  *slog.Logger
	path    string
	closed  atomic.Bool
	now     func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) a SQLite version store.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := cfg.Codec
	if c == nil {
		c = codec.Default()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultDecodedCacheSize
	}

	decoded, err := lru.New[string, ValueMap](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: decoded cache: %w", err)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	s := &SQLiteStore{
		pool:    pool,
		codec:   c,
		decoded: decoded,
		logger:  logger,
		path:    cfg.Path,
		now:     time.Now,
	}
	if err := s.migrate(); err != nil {
		_ = pool.Close()
		return nil, err
	}

	logger.Info("version store opened", "path", cfg.Path, "pool_size", poolSize)
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) take(ctx context.Context) (*sqlite.Conn, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: take: %w", err)
	}
	return conn, nil
}

func cacheKey(project string, n int) string {
	return project + "@" + strconv.Itoa(n)
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, project string, values ValueMap) (info Info, err error) {
	if project == "" {
		return Info{}, ErrEmptyProject
	}
	if values == nil {
		values = ValueMap{}
	}
	blob, err := s.codec.Marshal(map[string]any(values))
	if err != nil {
		return Info{}, fmt.Errorf("record %s: encode: %w", project, err)
	}
	digest, err := Digest(values)
	if err != nil {
		return Info{}, fmt.Errorf("record %s: %w", project, err)
	}

	conn, err := s.take(ctx)
	if err != nil {
		return Info{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Info{}, fmt.Errorf("record %s: begin transaction: %w", project, err)
	}
	defer endTransaction(&err)

	next := 1
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE project = ?", &sqlitex.ExecOptions{
		Args: []any{project},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			next = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("record %s: next number: %w", project, err)
	}

	created := s.now().UTC()
	err = sqlitex.Execute(conn,
		"INSERT INTO versions (project, number, created_ns, digest, snapshot) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{project, next, created.UnixNano(), digest, blob}})
	if err != nil {
		return Info{}, fmt.Errorf("record %s: insert: %w", project, err)
	}

	stable, err := s.stableIn(conn, project)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Number:  next,
		Created: created,
		Digest:  digest,
		Stable:  stable == 0 || stable == next,
	}, nil
}

// Values implements Store.
func (s *SQLiteStore) Values(ctx context.Context, project string, n int) (ValueMap, bool, error) {
	if n < 1 {
		return nil, false, nil
	}
	key := cacheKey(project, n)
	if vm, ok := s.decoded.Get(key); ok {
		return vm.Clone(), true, nil
	}

	conn, err := s.take(ctx)
	if err != nil {
		return nil, false, err
	}
	defer s.pool.Put(conn)

	var blob []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT snapshot FROM versions WHERE project = ? AND number = ?", &sqlitex.ExecOptions{
		Args: []any{project, n},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("values %s@%d: %w", project, n, err)
	}
	if !found {
		return nil, false, nil
	}

	var vm map[string]any
	if err := s.codec.Unmarshal(blob, &vm); err != nil {
		return nil, false, fmt.Errorf("values %s@%d: decode: %w", project, n, err)
	}
	if vm == nil {
		vm = map[string]any{}
	}
	s.decoded.Add(key, ValueMap(vm))
	return ValueMap(vm).Clone(), true, nil
}

// Stable implements Store.
func (s *SQLiteStore) Stable(ctx context.Context, project string) (int, bool, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, false, err
	}
	defer s.pool.Put(conn)

	latest, err := s.latestIn(conn, project)
	if err != nil || latest == 0 {
		return 0, false, err
	}
	stable, err := s.stableIn(conn, project)
	if err != nil {
		return 0, false, err
	}
	if stable == 0 {
		return latest, true, nil
	}
	return stable, true, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, project string) (int, bool, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, false, err
	}
	defer s.pool.Put(conn)

	latest, err := s.latestIn(conn, project)
	if err != nil || latest == 0 {
		return 0, false, err
	}
	return latest, true, nil
}

// SetStable implements Store.
func (s *SQLiteStore) SetStable(ctx context.Context, project string, n int) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("set stable %s@%d: begin transaction: %w", project, n, err)
	}
	defer endTransaction(&err)

	latest, err := s.latestIn(conn, project)
	if err != nil {
		return err
	}
	if n < 1 || n > latest {
		return fmt.Errorf("set stable %s@%d: %w", project, n, ErrVersionNotFound)
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO stable (project, number) VALUES (?, ?) ON CONFLICT(project) DO UPDATE SET number = excluded.number",
		&sqlitex.ExecOptions{Args: []any{project, n}})
	if err != nil {
		return fmt.Errorf("set stable %s@%d: %w", project, n, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, project string) ([]Info, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var infos []Info
	err = sqlitex.Execute(conn,
		"SELECT number, created_ns, digest FROM versions WHERE project = ? ORDER BY number",
		&sqlitex.ExecOptions{
			Args: []any{project},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				infos = append(infos, Info{
					Number:  stmt.ColumnInt(0),
					Created: time.Unix(0, stmt.ColumnInt64(1)).UTC(),
					Digest:  stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", project, err)
	}
	if len(infos) == 0 {
		return nil, nil
	}

	stable, err := s.stableIn(conn, project)
	if err != nil {
		return nil, err
	}
	if stable == 0 {
		stable = infos[len(infos)-1].Number
	}
	for i := range infos {
		infos[i].Stable = infos[i].Number == stable
	}
	return infos, nil
}

// Rename implements Store. Decoded snapshots cached under oldName are
// dropped.
func (s *SQLiteStore) Rename(ctx context.Context, oldName, newName string) (err error) {
	if newName == "" {
		return ErrEmptyProject
	}
	if oldName == newName {
		return nil
	}
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("rename %s to %s: begin transaction: %w", oldName, newName, err)
	}
	defer endTransaction(&err)

	existing, err := s.latestIn(conn, newName)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("rename %s to %s: %w", oldName, newName, ErrHistoryExists)
	}

	for _, query := range []string{
		"UPDATE versions SET project = ? WHERE project = ?",
		"UPDATE stable SET project = ? WHERE project = ?",
	} {
		err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{newName, oldName}})
		if err != nil {
			return fmt.Errorf("rename %s to %s: %w", oldName, newName, err)
		}
	}

	prefix := oldName + "@"
	for _, key := range s.decoded.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.decoded.Remove(key)
		}
	}
	return nil
}

// Close implements Store. It purges the decoded-snapshot cache.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.decoded.Purge()
	if err := s.pool.Close(); err != nil {
		s.logger.Error("version store close error", "path", s.path, "error", err)
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("version store closed", "path", s.path)
	return nil
}

// CachedSnapshots returns the number of decoded snapshots held in memory.
func (s *SQLiteStore) CachedSnapshots() int {
	return s.decoded.Len()
}

func (s *SQLiteStore) latestIn(conn *sqlite.Conn, project string) (int, error) {
	latest := 0
	err := sqlitex.Execute(conn, "SELECT COALESCE(MAX(number), 0) FROM versions WHERE project = ?", &sqlitex.ExecOptions{
		Args: []any{project},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			latest = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("latest %s: %w", project, err)
	}
	return latest, nil
}

// stableIn returns the stored stable marker, or 0 when none was set.
func (s *SQLiteStore) stableIn(conn *sqlite.Conn, project string) (int, error) {
	stable := 0
	err := sqlitex.Execute(conn, "SELECT number FROM stable WHERE project = ?", &sqlitex.ExecOptions{
		Args: []any{project},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stable = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("stable %s: %w", project, err)
	}
	return stable, nil
}
