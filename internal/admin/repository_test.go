package admin

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/testutil"
)

func graphInput() *GraphInput {
	return &GraphInput{
		Slug:          "vendas_mes",
		Title:         "Vendas do mês",
		QueryTemplate: "SELECT * FROM vendas WHERE data >= {{inicio}}",
	}
}

func TestSaveGraph_Insert(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO graficos_dashboard").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(12)))

	conn := mockDB.Conn(t)
	defer conn.Close()

	id, err := NewMetadataRepository().SaveGraph(context.Background(), conn, graphInput())

	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	mockDB.ExpectationsWereMet(t)
}

func TestSaveGraph_DuplicateSlug(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO graficos_dashboard").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "graficos_dashboard_slug_key"})

	conn := mockDB.Conn(t)
	defer conn.Close()

	_, err := NewMetadataRepository().SaveGraph(context.Background(), conn, graphInput())

	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.StatusCode)
	assert.Contains(t, appErr.Message, "slug")
}

func TestSaveGraph_UpdateUnknownID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("UPDATE graficos_dashboard").WillReturnError(sql.ErrNoRows)

	conn := mockDB.Conn(t)
	defer conn.Close()

	in := graphInput()
	in.ID = 99
	_, err := NewMetadataRepository().SaveGraph(context.Background(), conn, in)

	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
}

func TestSaveTable_Insert(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO dashboard_tables").
		WillReturnRows(testutil.MockRows("id").AddRow(int64(3)))

	conn := mockDB.Conn(t)
	defer conn.Close()

	in := &TableInput{GraphInput: *graphInput(), PrimaryKey: "id"}
	id, err := NewMetadataRepository().SaveTable(context.Background(), conn, in)

	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	mockDB.ExpectationsWereMet(t)
}
