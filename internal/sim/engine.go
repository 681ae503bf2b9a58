package sim

import (
	"context"

	"github.com/paiml/probar/internal/perr"
)

// Stepper is the subset of wasmrt.Instance the engine drives. Defined
// here (rather than imported) so the engine can be driven by any
// deterministic steppable target, matching spec.md §9's tagged-dispatch
// preference over concrete coupling.
type Stepper interface {
	Step(ctx context.Context, inputs []uint64) ([]uint64, error)
	HashState(exportNames ...string) (uint64, error)
	ModuleHash() [32]byte
}

// SampleStride samples an intermediate state hash every N frames during
// recording (frame 0 and the final frame are always sampled).
const SampleStride = 50

// Record steps stepper frame-by-frame for frameCount frames, invoking
// inputFn(frameIndex) to obtain each frame's input list, and returns the
// resulting Recording (spec.md §4.5).
func Record(ctx context.Context, stepper Stepper, seed uint64, frameCount uint32, inputFn func(frameIndex uint32) []uint64) (Recording, error) {
	rec := Recording{
		Version:        recordingVersion,
		ModuleHash:     stepper.ModuleHash(),
		Seed:           seed,
		FrameCount:     frameCount,
		PerFrameInputs: make([][]uint64, 0, frameCount),
	}

	for frame := uint32(0); frame < frameCount; frame++ {
		inputs := inputFn(frame)
		if _, err := stepper.Step(ctx, inputs); err != nil {
			return Recording{}, err
		}
		rec.PerFrameInputs = append(rec.PerFrameInputs, inputs)

		if frame == 0 || frame == frameCount-1 || frame%SampleStride == 0 {
			hash, err := stepper.HashState()
			if err != nil {
				return Recording{}, err
			}
			rec.Samples = append(rec.Samples, FrameHash{Frame: frame, Hash: hash})
		}
	}

	terminal, err := stepper.HashState()
	if err != nil {
		return Recording{}, err
	}
	rec.TerminalHash = terminal
	return rec, nil
}

// Replay seeds stepper with rec's recorded inputs and verifies
// determinism per spec.md §4.5: the module hash must match, every
// sampled intermediate hash must match, and the terminal hash must
// match.
func Replay(ctx context.Context, stepper Stepper, rec Recording) error {
	if stepper.ModuleHash() != rec.ModuleHash {
		return perr.New(perr.KindValidationError, component, "replay", "module content-hash does not match recording", nil)
	}

	samples := make(map[uint32]uint64, len(rec.Samples))
	for _, s := range rec.Samples {
		samples[s.Frame] = s.Hash
	}

	for frame, inputs := range rec.PerFrameInputs {
		if _, err := stepper.Step(ctx, inputs); err != nil {
			return err
		}
		if want, ok := samples[uint32(frame)]; ok {
			got, err := stepper.HashState()
			if err != nil {
				return err
			}
			if got != want {
				return &perr.DeterminismViolation{Frame: uint32(frame), Expected: want, Observed: got}
			}
		}
	}

	terminal, err := stepper.HashState()
	if err != nil {
		return err
	}
	if terminal != rec.TerminalHash {
		return &perr.DeterminismViolation{Frame: rec.FrameCount, Expected: rec.TerminalHash, Observed: terminal}
	}
	return nil
}
