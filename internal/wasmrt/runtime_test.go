package wasmrt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/wasmrt"
)

// emptyModule is the minimal valid WebAssembly module: magic bytes plus
// version 1 and no sections. It compiles and instantiates under any
// spec-compliant runtime (including wazero) but exports nothing, which
// is exactly what these tests need to exercise the "no such export"
// and content-hash-identity paths without shipping a built artifact.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestLoadEmptyModuleSucceeds(t *testing.T) {
	ctx := context.Background()
	rt := wasmrt.New(ctx, wasmrt.DefaultOptions())
	defer rt.Close(ctx)

	in, err := rt.Load(ctx, emptyModule)
	require.NoError(t, err)
	defer in.Close(ctx)
}

func TestCallMissingExportIsValidationError(t *testing.T) {
	ctx := context.Background()
	rt := wasmrt.New(ctx, wasmrt.DefaultOptions())
	defer rt.Close(ctx)

	in, err := rt.Load(ctx, emptyModule)
	require.NoError(t, err)
	defer in.Close(ctx)

	_, err = in.Step(ctx, []uint64{1})
	require.Error(t, err)
	require.True(t, perr.OfKind(err, perr.KindValidationError))
}

func TestContentHashIsDeterministic(t *testing.T) {
	h1 := wasmrt.ContentHash(emptyModule)
	h2 := wasmrt.ContentHash(emptyModule)
	require.Equal(t, h1, h2)

	other := wasmrt.ContentHash(append(append([]byte{}, emptyModule...), 0x00))
	require.NotEqual(t, h1, other)
}

func TestHashStateOverEmptyMemoryIsStable(t *testing.T) {
	ctx := context.Background()
	rt := wasmrt.New(ctx, wasmrt.DefaultOptions())
	defer rt.Close(ctx)

	in, err := rt.Load(ctx, emptyModule)
	require.NoError(t, err)
	defer in.Close(ctx)

	h1, err := in.HashState()
	require.NoError(t, err)
	h2, err := in.HashState()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
