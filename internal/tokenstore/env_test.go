package tokenstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStore_VarName(t *testing.T) {
	store, err := NewEnvStore("PHOTOLALA_")
	require.NoError(t, err)

	assert.Equal(t, "PHOTOLALA_REFRESH_ALICE_EXAMPLE_COM", store.VarName("refresh:alice@example.com"))
	assert.Equal(t, "PHOTOLALA_ACCOUNT", store.VarName("account"))
}

func TestEnvStore_Read(t *testing.T) {
	store, err := NewEnvStore("PHOTOLALA_TEST_")
	require.NoError(t, err)

	t.Setenv("PHOTOLALA_TEST_ACCOUNT", "  alice@example.com \n")

	got, err := store.Read(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got)

	_, err = store.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvStore_ReadOnly(t *testing.T) {
	store, err := NewEnvStore("PHOTOLALA_TEST_")
	require.NoError(t, err)

	assert.ErrorIs(t, store.Write(context.Background(), "k", "v"), ErrReadOnly)
	assert.ErrorIs(t, store.Delete(context.Background(), "k"), ErrReadOnly)
}

func TestNewEnvStore_EmptyPrefix(t *testing.T) {
	_, err := NewEnvStore("")
	assert.Error(t, err)
}
