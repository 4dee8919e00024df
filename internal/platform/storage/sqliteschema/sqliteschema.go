// Package sqliteschema creates SQLite tables from embedded DDL when they are
// missing. It is a presence check, not a migration system: once every
// expected table exists the schema is assumed to match.
package sqliteschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// TablesExist reports whether every named table is present in sqlite_master.
func TablesExist(ctx context.Context, sqlDB *sql.DB, tables ...string) (bool, error) {
	if sqlDB == nil {
		return false, fmt.Errorf("sql db is required")
	}
	if len(tables) == 0 {
		return false, fmt.Errorf("at least one table name is required")
	}
	for _, table := range tables {
		var name string
		err := sqlDB.QueryRowContext(
			ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check table %s: %w", table, err)
		}
	}
	return true, nil
}

// Ensure executes every .sql file under root in schemaFS, in name order and
// inside one transaction, unless all tables already exist. It reports whether
// the DDL ran.
func Ensure(ctx context.Context, sqlDB *sql.DB, schemaFS fs.FS, root string, tables ...string) (bool, error) {
	present, err := TablesExist(ctx, sqlDB, tables...)
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}

	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(schemaFS, root)
	if err != nil {
		return false, fmt.Errorf("read schema dir: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	if len(sqlFiles) == 0 {
		return false, fmt.Errorf("no schema files found in %s", root)
	}
	sort.Strings(sqlFiles)

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin schema transaction: %w", err)
	}
	for _, file := range sqlFiles {
		content, err := fs.ReadFile(schemaFS, path.Join(root, file))
		if err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("read schema %s: %w", file, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			if !IsAlreadyExistsError(err) {
				_ = tx.Rollback()
				return false, fmt.Errorf("exec schema %s: %w", file, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit schema: %w", err)
	}

	present, err = TablesExist(ctx, sqlDB, tables...)
	if err != nil {
		return false, err
	}
	if !present {
		return false, fmt.Errorf("schema did not create tables %s", strings.Join(tables, ", "))
	}
	return true, nil
}

// IsAlreadyExistsError reports whether this error indicates idempotent DDL success.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}
