package db

import (
	"context"
	"fmt"
	"strings"
)

// Column is one column of an introspected table, in declaration order.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// ListTables returns the base tables of the public schema. The migration
// ledger is not part of the business schema and is left out.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		  AND table_name <> 'schema_migrations'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Columns returns the columns of table ordered by ordinal position.
func (db *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("describe table %s: table not found", table)
	}
	return cols, nil
}

// DescribeTable renders the table as a CREATE TABLE statement, the shape the
// query prompt expects.
func (db *DB) DescribeTable(ctx context.Context, table string) (string, error) {
	cols, err := db.Columns(ctx, table)
	if err != nil {
		return "", err
	}
	return FormatCreateTable(table, cols), nil
}

func FormatCreateTable(table string, cols []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, c := range cols {
		fmt.Fprintf(&b, "\t%s %s", c.Name, strings.ToUpper(c.DataType))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(cols)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}
