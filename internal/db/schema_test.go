package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTables(t *testing.T) {
	database, mock := newMockDB(t)
	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("cashflow").AddRow("inventory").AddRow("users"))

	tables, err := database.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cashflow", "inventory", "users"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeTable_KeepsOrdinalOrder(t *testing.T) {
	database, mock := newMockDB(t)
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("inventory").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "bigint", "NO").
			AddRow("item_name", "character varying", "NO").
			AddRow("quantity", "integer", "NO").
			AddRow("price", "numeric", "NO").
			AddRow("user_id", "bigint", "NO").
			AddRow("last_update_date", "timestamp with time zone", "YES"))

	desc, err := database.DescribeTable(context.Background(), "inventory")
	require.NoError(t, err)

	want := "CREATE TABLE inventory (\n" +
		"\tid BIGINT NOT NULL,\n" +
		"\titem_name CHARACTER VARYING NOT NULL,\n" +
		"\tquantity INTEGER NOT NULL,\n" +
		"\tprice NUMERIC NOT NULL,\n" +
		"\tuser_id BIGINT NOT NULL,\n" +
		"\tlast_update_date TIMESTAMP WITH TIME ZONE\n" +
		")"
	assert.Equal(t, want, desc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumns_UnknownTable(t *testing.T) {
	database, mock := newMockDB(t)
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	_, err := database.Columns(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table not found")
}
