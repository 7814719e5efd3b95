package envstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infrakt/infrakt/api/internal/core/envstore"
	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
)

func newTestStore(t *testing.T) *envstore.Store {
	t.Helper()
	key, err := crypto.LoadOrCreateMasterKey(t.TempDir() + "/master.key")
	require.NoError(t, err)
	svc, err := crypto.NewAESCryptoService(key)
	require.NoError(t, err)
	return envstore.NewStore(t.TempDir(), svc)
}

func TestStore_SetAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, 1, map[string]string{"FOO": "bar", "BAZ": "qux"}))

	vars, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, vars)
}

func TestStore_ListWithNoFileReturnsEmpty(t *testing.T) {
	vars, err := newTestStore(t).List(context.Background(), 999)
	require.NoError(t, err)
	require.Empty(t, vars)
}

func TestStore_SetWithEmptyValueDeletesKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, 1, map[string]string{"FOO": "bar"}))
	require.NoError(t, s.Set(ctx, 1, map[string]string{"FOO": ""}))

	vars, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, vars)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, 1, map[string]string{"FOO": "bar", "BAZ": "qux"}))
	require.NoError(t, s.Delete(ctx, 1, "FOO"))

	vars, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"BAZ": "qux"}, vars)
}

func TestStore_RenderDotEnvSortsKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, 1, map[string]string{"ZEBRA": "1", "ALPHA": "2"}))

	content, err := s.RenderDotEnv(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "ALPHA=2\nZEBRA=1\n", content)
}

func TestStore_RenderDotEnvEmptyWhenNoVars(t *testing.T) {
	content, err := newTestStore(t).RenderDotEnv(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "", content)
}

func TestStore_ValuesAreIsolatedPerApp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, 1, map[string]string{"FOO": "app-one"}))
	require.NoError(t, s.Set(ctx, 2, map[string]string{"FOO": "app-two"}))

	v1, err := s.List(ctx, 1)
	require.NoError(t, err)
	v2, err := s.List(ctx, 2)
	require.NoError(t, err)

	require.Equal(t, "app-one", v1["FOO"])
	require.Equal(t, "app-two", v2["FOO"])
}
