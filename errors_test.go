package sqlkit_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/sqlkit"
)

func TestArgumentError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &sqlkit.ArgumentError{Op: "join", Msg: "missing condition"}
		assert.Equal(t, "sqlkit: join: missing condition", err.Error())

		err = &sqlkit.ArgumentError{Op: "escape", Msg: "int value", Err: errors.New("bad")}
		assert.Equal(t, "sqlkit: escape: int value: bad", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := &sqlkit.ArgumentError{Op: "insert id", Msg: "DELETE statement", Err: sqlkit.ErrNotInsert}
		assert.True(t, errors.Is(err, sqlkit.ErrInvalidArgument))
		assert.True(t, errors.Is(err, sqlkit.ErrNotInsert))
	})

	t.Run("IsArgumentError", func(t *testing.T) {
		err := &sqlkit.ArgumentError{Op: "select", Msg: "no columns"}
		assert.True(t, sqlkit.IsArgumentError(err))
		assert.True(t, sqlkit.IsArgumentError(fmt.Errorf("wrapper: %w", err)))
		assert.False(t, sqlkit.IsArgumentError(errors.New("other")))
		assert.False(t, sqlkit.IsArgumentError(nil))
	})
}

func TestQueryErrorType(t *testing.T) {
	cause := errors.New("no such table: users")
	err := &sqlkit.QueryError{SQL: "SELECT * FROM users", Op: sqlkit.Select, Err: cause}
	assert.Equal(t, "sqlkit: SELECT failed: no such table: users [SELECT * FROM users]", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, sqlkit.IsQueryError(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, sqlkit.IsQueryError(cause))
	assert.False(t, sqlkit.IsQueryError(nil))
}

func TestSentinelErrors(t *testing.T) {
	for _, err := range []error{
		sqlkit.ErrInvalidArgument,
		sqlkit.ErrCircularReference,
		sqlkit.ErrNotInsert,
		sqlkit.ErrNoPrimaryKey,
	} {
		assert.Contains(t, err.Error(), "sqlkit: ")
	}
}
