package sim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/sim"
)

// fakeStepper is a trivial deterministic accumulator: state is the sum
// of every input ever stepped, and its hash is just that sum. Good
// enough to exercise Record/Replay without a real WASM module.
type fakeStepper struct {
	moduleHash [32]byte
	state      uint64
}

func (f *fakeStepper) Step(ctx context.Context, inputs []uint64) ([]uint64, error) {
	for _, v := range inputs {
		f.state += v
	}
	return nil, nil
}

func (f *fakeStepper) HashState(exportNames ...string) (uint64, error) { return f.state, nil }
func (f *fakeStepper) ModuleHash() [32]byte                            { return f.moduleHash }

func TestPCG32IsDeterministicForSameSeedAndStream(t *testing.T) {
	a := sim.NewPCG32(42, 1)
	b := sim.NewPCG32(42, 1)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uint32(), b.Uint32())
	}
}

func TestPCG32DiffersAcrossStreams(t *testing.T) {
	a := sim.NewPCG32(42, 1)
	b := sim.NewPCG32(42, 2)
	diffSeen := false
	for i := 0; i < 20; i++ {
		if a.Uint32() != b.Uint32() {
			diffSeen = true
		}
	}
	require.True(t, diffSeen)
}

func TestShouldFillBoundaryBehavior(t *testing.T) {
	rng := sim.NewPCG32(1, 1)
	for i := 0; i < 50; i++ {
		require.False(t, sim.ShouldFill(rng, 0))
	}
	for i := 0; i < 50; i++ {
		require.True(t, sim.ShouldFill(rng, 1))
	}
}

func TestRecordThenReplaySucceeds(t *testing.T) {
	ctx := context.Background()
	rng := sim.NewPCG32(42, 0)
	stepper := &fakeStepper{moduleHash: [32]byte{1, 2, 3}}

	rec, err := sim.Record(ctx, stepper, 42, 500, func(frame uint32) []uint64 {
		return []uint64{uint64(rng.Uint32() % 10)}
	})
	require.NoError(t, err)
	require.Equal(t, uint32(500), rec.FrameCount)

	replayStepper := &fakeStepper{moduleHash: [32]byte{1, 2, 3}}
	require.NoError(t, sim.Replay(ctx, replayStepper, rec))
}

func TestReplayRejectsModuleHashMismatch(t *testing.T) {
	ctx := context.Background()
	stepper := &fakeStepper{moduleHash: [32]byte{1}}
	rec, err := sim.Record(ctx, stepper, 1, 1, func(frame uint32) []uint64 { return nil })
	require.NoError(t, err)

	wrongStepper := &fakeStepper{moduleHash: [32]byte{2}}
	err = sim.Replay(ctx, wrongStepper, rec)
	require.Error(t, err)
	require.True(t, perr.OfKind(err, perr.KindValidationError))
}

func TestReplayDetectsTerminalHashMismatch(t *testing.T) {
	ctx := context.Background()
	stepper := &fakeStepper{moduleHash: [32]byte{9}}
	rec, err := sim.Record(ctx, stepper, 1, 3, func(frame uint32) []uint64 { return []uint64{1} })
	require.NoError(t, err)

	tamperedStepper := &fakeStepper{moduleHash: [32]byte{9}, state: 1000} // diverges from recorded accumulation
	err = sim.Replay(ctx, tamperedStepper, rec)
	require.Error(t, err)
	var dv *perr.DeterminismViolation
	require.ErrorAs(t, err, &dv)
}

func TestRecordingRoundTripsThroughCanonicalBytes(t *testing.T) {
	ctx := context.Background()
	stepper := &fakeStepper{moduleHash: [32]byte{7, 7}}
	rec, err := sim.Record(ctx, stepper, 99, 120, func(frame uint32) []uint64 { return []uint64{uint64(frame), 2} })
	require.NoError(t, err)

	data := rec.Marshal()
	parsed, err := sim.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, rec.Seed, parsed.Seed)
	require.Equal(t, rec.ModuleHash, parsed.ModuleHash)
	require.Equal(t, rec.TerminalHash, parsed.TerminalHash)
	require.Equal(t, rec.PerFrameInputs, parsed.PerFrameInputs)
	require.Equal(t, rec.Samples, parsed.Samples)
}

func TestUnmarshalRejectsBadChecksum(t *testing.T) {
	stepper := &fakeStepper{moduleHash: [32]byte{1}}
	rec, _ := sim.Record(context.Background(), stepper, 1, 1, func(frame uint32) []uint64 { return nil })
	data := rec.Marshal()
	data[len(data)-1] ^= 0xFF // corrupt the crc32

	_, err := sim.Unmarshal(data)
	require.Error(t, err)
}
