package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rl1809/shop-stock/internal/adapter/storage/migrations"
	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

// Dialect holds the statements that differ between the supported databases.
type Dialect struct {
	Name          string
	driver        string
	migrationRoot string
	bumpRevision  string
	insertIgnore  string
}

var (
	MySQL = Dialect{
		Name:          "mysql",
		driver:        "mysql",
		migrationRoot: "mysql",
		bumpRevision: `
			INSERT INTO stock_collections (collection, revision) VALUES (?, 1)
			ON DUPLICATE KEY UPDATE revision = revision + 1`,
		insertIgnore: "INSERT IGNORE INTO %s (name, applied_at) VALUES (?, ?)",
	}
	SQLite = Dialect{
		Name:          "sqlite",
		driver:        "sqlite",
		migrationRoot: "sqlite",
		bumpRevision: `
			INSERT INTO stock_collections (collection, revision) VALUES (?, 1)
			ON CONFLICT (collection) DO UPDATE SET revision = revision + 1`,
		insertIgnore: "INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)",
	}
)

const DefaultPollInterval = time.Second

// SQLAdapter keeps documents in a relational table. Every write bumps a
// per-collection revision in the same transaction; subscribers poll that
// revision and reload the collection when it moves.
type SQLAdapter struct {
	db           *sql.DB
	dialect      Dialect
	pollInterval time.Duration
}

func NewSQLAdapter(db *sql.DB, dialect Dialect, pollInterval time.Duration) *SQLAdapter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &SQLAdapter{db: db, dialect: dialect, pollInterval: pollInterval}
}

// OpenMySQL connects to MySQL and applies the embedded schema.
func OpenMySQL(ctx context.Context, dsn string, pollInterval time.Duration) (*SQLAdapter, error) {
	db, err := sql.Open(MySQL.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return open(ctx, db, MySQL, pollInterval)
}

// OpenSQLite opens (or creates) a SQLite database file and applies the embedded schema.
func OpenSQLite(ctx context.Context, path string, pollInterval time.Duration) (*SQLAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open(SQLite.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one at a time anyway.
	db.SetMaxOpenConns(1)
	return open(ctx, db, SQLite, pollInterval)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, pollInterval time.Duration) (*SQLAdapter, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	if err := applyMigrations(ctx, db, dialect, migrations.FS, dialect.migrationRoot); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewSQLAdapter(db, dialect, pollInterval), nil
}

func (s *SQLAdapter) Close() error {
	return s.db.Close()
}

func (s *SQLAdapter) Subscribe(ctx context.Context, path string) (port.Subscription, error) {
	snap, rev, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	f := newFeed(cancel)
	f.offer(snap)

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				f.stop(nil)
				return
			case <-ticker.C:
			}

			current, err := s.revision(subCtx, path)
			if err == nil && current == rev {
				continue
			}
			if err == nil {
				snap, current, err = s.load(subCtx, path)
			}
			if err != nil {
				if subCtx.Err() != nil {
					f.stop(nil)
					return
				}
				f.stop(fmt.Errorf("poll %s: %w", path, err))
				return
			}
			rev = current
			f.offer(snap)
		}
	}()
	return f, nil
}

// Load reads the whole collection.
func (s *SQLAdapter) Load(ctx context.Context, path string) (domain.Snapshot, error) {
	snap, _, err := s.load(ctx, path)
	return snap, err
}

func (s *SQLAdapter) load(ctx context.Context, path string) (domain.Snapshot, int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect.Name == MySQL.Name})
	if err != nil {
		return domain.Snapshot{}, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rev, err := revisionTx(ctx, tx, path)
	if err != nil {
		return domain.Snapshot{}, 0, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, quantity, price, owner_id, version, created_at, updated_at
		FROM stock_items WHERE collection = ?
		ORDER BY created_at, id`, path)
	if err != nil {
		return domain.Snapshot{}, 0, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []domain.StockItem{}
	for rows.Next() {
		var item domain.StockItem
		var created, updated int64
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Price, &item.OwnerID,
			&item.Version, &created, &updated); err != nil {
			return domain.Snapshot{}, 0, fmt.Errorf("scan item: %w", err)
		}
		item.CreatedAt = fromMillis(created)
		item.UpdatedAt = fromMillis(updated)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, 0, fmt.Errorf("iterate items: %w", err)
	}

	return domain.Snapshot{Items: items, ReceivedAt: time.Now().UTC()}, rev, nil
}

func (s *SQLAdapter) revision(ctx context.Context, path string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM stock_collections WHERE collection = ?`, path,
	).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

func revisionTx(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	var rev int64
	err := tx.QueryRowContext(ctx,
		`SELECT revision FROM stock_collections WHERE collection = ?`, path,
	).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

func (s *SQLAdapter) Create(ctx context.Context, path string, item domain.StockItem) (string, error) {
	id := uuid.NewString()
	err := s.inTx(ctx, path, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_items (id, collection, name, quantity, price, owner_id, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			id, path, item.Name, item.Quantity, domain.FormatPrice(item.Price), item.OwnerID,
			toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLAdapter) Update(ctx context.Context, path, id string, patch domain.Patch) error {
	sets := []string{"updated_at = ?", "version = version + 1"}
	args := []interface{}{toMillis(patch.UpdatedAt)}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *patch.Quantity)
	}
	if patch.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, domain.FormatPrice(*patch.Price))
	}
	if patch.OwnerID != nil {
		sets = append(sets, "owner_id = ?")
		args = append(args, *patch.OwnerID)
	}
	args = append(args, path, id)

	return s.inTx(ctx, path, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE stock_items SET "+strings.Join(sets, ", ")+" WHERE collection = ? AND id = ?",
			args...,
		)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return port.ErrNotFound
		}
		return nil
	})
}

func (s *SQLAdapter) Increment(ctx context.Context, path, id string, delta, floor int, updatedAt time.Time) (int, error) {
	var quantity int
	err := s.inTx(ctx, path, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE stock_items
			SET quantity = quantity + ?, version = version + 1, updated_at = ?
			WHERE collection = ? AND id = ? AND quantity + ? >= ?`,
			delta, toMillis(updatedAt), path, id, delta, floor,
		)
		if err != nil {
			return fmt.Errorf("increment quantity: %w", err)
		}
		rows, _ := result.RowsAffected()

		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM stock_items WHERE collection = ? AND id = ?`, path, id,
		).Scan(&quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return port.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read quantity: %w", err)
		}
		if rows == 0 {
			return port.ErrBelowFloor
		}
		return nil
	})
	return quantity, err
}

func (s *SQLAdapter) Delete(ctx context.Context, path, id string) error {
	return s.inTx(ctx, path, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM stock_items WHERE collection = ? AND id = ?`, path, id,
		)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return port.ErrNotFound
		}
		return nil
	})
}

// inTx runs fn and bumps the collection revision in the same transaction.
// Nothing is committed when fn fails.
func (s *SQLAdapter) inTx(ctx context.Context, path string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.bumpRevision, path); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	return tx.Commit()
}
