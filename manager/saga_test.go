package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaAbortCompensatesInReverse(t *testing.T) {
	ctx := context.Background()
	tx := newSaga("test", testLogger())

	var undone []string
	undo := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			undone = append(undone, name)
			return err
		}
	}
	noop := func(context.Context) error { return nil }

	require.NoError(t, tx.Step(ctx, "first", noop, undo("first", nil)))
	require.NoError(t, tx.Step(ctx, "second", noop, undo("second", errors.New("boom"))))
	require.NoError(t, tx.Step(ctx, "read_only", noop, nil))
	require.NoError(t, tx.Step(ctx, "third", noop, undo("third", nil)))

	failed := errors.New("forward failed")
	err := tx.Step(ctx, "fourth", func(context.Context) error { return failed }, undo("fourth", nil))
	require.ErrorIs(t, err, failed)

	tx.Abort(ctx, err)
	assert.Equal(t, []string{"third", "second", "first"}, undone, "a failed compensation does not stop the rest")

	tx.Abort(ctx, err)
	assert.Len(t, undone, 3, "compensations run once")
}
