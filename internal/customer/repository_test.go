package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapainel/datapainel-backend/pkg/errors"
	"github.com/datapainel/datapainel-backend/pkg/testutil"
)

func TestTogglePaused(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("UPDATE clientes").
		WithArgs(int64(7)).
		WillReturnRows(testutil.MockRows("paused").AddRow(true))

	conn := mockDB.Conn(t)
	defer conn.Close()

	paused, err := NewRepository().TogglePaused(context.Background(), conn, 7)

	require.NoError(t, err)
	assert.True(t, paused)
	mockDB.ExpectationsWereMet(t)
}

func TestTogglePaused_UnknownCustomer(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("UPDATE clientes").
		WithArgs(int64(404)).
		WillReturnRows(testutil.MockRows("paused"))

	conn := mockDB.Conn(t)
	defer conn.Close()

	_, err := NewRepository().TogglePaused(context.Background(), conn, 404)

	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
	assert.Equal(t, "Cliente não encontrado", appErr.Message)
}
