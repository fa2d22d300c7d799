package composables

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseTx_NoPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	err = InTx(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNoPool)
}

func TestUseLogger_FallsBackToNop(t *testing.T) {
	entry := UseLogger(context.Background())
	require.NotNil(t, entry)
	require.Equal(t, logrus.PanicLevel, entry.Logger.GetLevel())

	custom := logrus.NewEntry(logrus.New()).WithField("request-id", "r1")
	ctx := WithLogger(context.Background(), custom)
	require.Same(t, custom, UseLogger(ctx))
}

func TestRequestID(t *testing.T) {
	_, ok := UseRequestID(context.Background())
	require.False(t, ok)

	id, ok := UseRequestID(WithRequestID(context.Background(), "abc"))
	require.True(t, ok)
	require.Equal(t, "abc", id)
}
