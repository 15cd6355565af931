package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/internal/domain/repository"

	_ "modernc.org/sqlite" // driver SQLite en Go puro, sin CGO
)

//go:embed schema.sql
var schemaSQL string

// Versiones del esquema local:
// 1 - working_counts sin columna mode (todo era auditoría)
// 2 - working_counts particionado por (owner_id, mode, code)
const currentSchemaVersion = 2

var _ repository.LocalStore = (*Store)(nil)

// Store almacenamiento durable del cliente sobre SQLite.
// Una sola conexión: SQLite admite un único escritor y así las transacciones no compiten.
type Store struct {
	db *sql.DB
}

// Open crea o abre la base local en path, aplica pragmas y migraciones.
// Idempotente: se puede llamar en cada arranque.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("crear directorio", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("abrir base local", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("conectar base local", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, storageErr("pragmas", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, storageErr("migrar esquema", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion devuelve la versión aplicada (PRAGMA user_version).
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, storageErr("leer versión", err)
	}
	return v, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("ejecutar %q: %w", p, err)
		}
	}
	return nil
}

// migrate lleva la base a currentSchemaVersion sin perder eventos pendientes.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("leer user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("la base local es versión %d y este cliente soporta hasta %d", version, currentSchemaVersion)
	}
	if version == 1 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("aplicar esquema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("fijar user_version: %w", err)
	}
	return nil
}

// migrateToV2 reconstruye working_counts con la columna mode; los registros previos quedan como auditoría.
// pending_mutations no cambia.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migración v2: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE working_counts_v2 (
			owner_id         TEXT NOT NULL,
			mode             TEXT NOT NULL DEFAULT 'audit',
			code             TEXT NOT NULL,
			product_id       INTEGER NOT NULL DEFAULT 0,
			description      TEXT NOT NULL DEFAULT '',
			system_balance   TEXT NOT NULL DEFAULT '0',
			quantities       TEXT NOT NULL DEFAULT '{}',
			first_counted_at INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL,
			PRIMARY KEY (owner_id, mode, code)
		)`,
		`INSERT INTO working_counts_v2
			(owner_id, mode, code, product_id, description, system_balance, quantities, first_counted_at, updated_at)
		 SELECT owner_id, 'audit', code, product_id, description, system_balance, quantities, first_counted_at, updated_at
		 FROM working_counts`,
		`DROP TABLE working_counts`,
		`ALTER TABLE working_counts_v2 RENAME TO working_counts`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("migración v2: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migración v2 commit: %w", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
