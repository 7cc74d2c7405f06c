package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the product catalog and persisted
// transactions. It is safe for concurrent use by multiple request handlers.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "suaraniaga.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies any embedded SQL migration files that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Transactions ---

// SaveTransaction persists a transaction as two ordered writes: the header
// row first, then one item row per line item referencing the generated id.
// If the header insert fails nothing is written and the zero Transaction is
// returned. If an item insert fails after the header committed, the header
// record is returned together with the error; the caller decides how to
// report the partial state. The writes are deliberately not wrapped in one
// atomic commit, matching the lenient header/item contract.
func (s *Store) SaveTransaction(customerName *string, isDebt bool, items []TransactionItem) (Transaction, error) {
	header := Transaction{
		ID:           uuid.New().String(),
		CustomerName: customerName,
		IsDebt:       isDebt,
		TotalAmount:  0, // total computation from product prices is deferred
		CreatedAt:    time.Now().UTC(),
		Items:        []TransactionItem{},
	}

	_, err := s.db.Exec(`
		INSERT INTO transactions (id, customer_name, is_debt, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		header.ID, customerName, isDebt, header.TotalAmount,
		header.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("inserting transaction header: %w", err)
	}

	for _, item := range items {
		_, err := s.db.Exec(`
			INSERT INTO transaction_items (transaction_id, product_name, quantity, unit)
			VALUES (?, ?, ?, ?)`,
			header.ID, item.ProductName, item.Quantity, item.Unit,
		)
		if err != nil {
			return header, fmt.Errorf("inserting item %q for transaction %s: %w", item.ProductName, header.ID, err)
		}
		item.TransactionID = header.ID
		header.Items = append(header.Items, item)
	}

	return header, nil
}

// RecentTransactions returns up to limit transactions ordered newest-first,
// each with its nested item rows.
func (s *Store) RecentTransactions(limit int) ([]Transaction, error) {
	// rowid breaks ties for rows created within the same instant.
	rows, err := s.db.Query(`
		SELECT id, customer_name, is_debt, total_amount, created_at
		FROM transactions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Transaction
	for rows.Next() {
		var tx Transaction
		var createdAt string
		if err := rows.Scan(&tx.ID, &tx.CustomerName, &tx.IsDebt, &tx.TotalAmount, &createdAt); err != nil {
			return nil, err
		}
		if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for transaction %s: %w", tx.ID, err)
		}
		results = append(results, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		items, err := s.transactionItems(results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Items = items
	}
	return results, nil
}

func (s *Store) transactionItems(transactionID string) ([]TransactionItem, error) {
	rows, err := s.db.Query(`
		SELECT transaction_id, product_name, quantity, unit
		FROM transaction_items WHERE transaction_id = ? ORDER BY rowid ASC`, transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []TransactionItem{}
	for rows.Next() {
		var item TransactionItem
		if err := rows.Scan(&item.TransactionID, &item.ProductName, &item.Quantity, &item.Unit); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Products ---

// ListProducts returns the full catalog with the minimal field set used for
// prompt context.
func (s *Store) ListProducts() ([]Product, error) {
	rows, err := s.db.Query("SELECT name, stock, price, unit FROM products ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Name, &p.Stock, &p.Price, &p.Unit); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SearchProducts returns products whose name contains query,
// case-insensitive.
func (s *Store) SearchProducts(query string) ([]Product, error) {
	rows, err := s.db.Query(`
		SELECT name, stock, price, unit FROM products
		WHERE name LIKE '%' || ? || '%' COLLATE NOCASE ORDER BY name ASC`, query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Name, &p.Stock, &p.Price, &p.Unit); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProduct inserts or replaces a catalog row, keyed by name.
func (s *Store) UpsertProduct(p Product) error {
	_, err := s.db.Exec(`
		INSERT INTO products (name, stock, price, unit) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET stock = excluded.stock, price = excluded.price, unit = excluded.unit`,
		p.Name, p.Stock, p.Price, p.Unit,
	)
	return err
}
