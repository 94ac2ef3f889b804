package vectorstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUndefinedTable(t *testing.T) {
	missing := fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01", Message: `relation "kb_docs" does not exist`})
	assert.True(t, isUndefinedTable(missing))

	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "42601"}))
	assert.False(t, isUndefinedTable(errors.New("relation does not exist")))
	assert.False(t, isUndefinedTable(nil))
}
