package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Execer is the minimal execution surface shared by the postgres pool and
// the clickhouse connection.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// ApplyPostgres runs all embedded PostgreSQL migrations in filename order.
func ApplyPostgres(ctx context.Context, exec Execer) error {
	return apply(ctx, exec, PostgresFS, "postgres", false)
}

// ApplyClickhouse runs all embedded ClickHouse migrations in filename order.
// ClickHouse does not accept multi-statement scripts, so files are split on
// statement boundaries.
func ApplyClickhouse(ctx context.Context, exec Execer) error {
	return apply(ctx, exec, ClickhouseFS, "clickhouse", true)
}

func apply(ctx context.Context, exec Execer, fsys embed.FS, dir string, split bool) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		stmts := []string{string(data)}
		if split {
			stmts = splitStatements(string(data))
		}
		for _, stmt := range stmts {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}
