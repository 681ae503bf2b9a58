package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paiml/probar/internal/sim"
	"github.com/paiml/probar/internal/wasmrt"
)

// newRecordCmd wires `record`: load a WASM module, step it for --frames
// frames under a seeded PRNG, and write the resulting recording to
// --out in the canonical byte layout.
func newRecordCmd() *cobra.Command {
	var (
		seed       uint64
		frames     uint32
		modulePath string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "record a seeded simulation run to a canonical recording file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if modulePath == "" {
				return fmt.Errorf("--module is required")
			}
			ctx := context.Background()

			wasmBytes, err := os.ReadFile(modulePath)
			if err != nil {
				return fmt.Errorf("read module: %w", err)
			}

			rt := wasmrt.New(ctx, wasmrt.DefaultOptions())
			defer rt.Close(ctx)

			instance, err := rt.Load(ctx, wasmBytes)
			if err != nil {
				return fmt.Errorf("load module: %w", err)
			}
			defer instance.Close(ctx)

			rng := sim.NewPCG32(seed, 0)
			rec, err := sim.Record(ctx, instance, seed, frames, func(frame uint32) []uint64 {
				return []uint64{uint64(rng.Uint32())}
			})
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			if out == "" {
				out = "recording.json"
			}
			if err := os.WriteFile(out, rec.Marshal(), 0o644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}
			logger.Info("recorded",
				zap.Uint64("seed", seed),
				zap.Uint32("frames", rec.FrameCount),
				zap.Uint64("terminal_hash", rec.TerminalHash),
				zap.String("out", out),
			)
			fmt.Printf("wrote %s (%d frames, terminal hash %d)\n", out, rec.FrameCount, rec.TerminalHash)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "PRNG seed")
	cmd.Flags().Uint32Var(&frames, "frames", 100, "number of frames to record")
	cmd.Flags().StringVar(&modulePath, "module", "", "path to the WASM module to drive")
	cmd.Flags().StringVar(&out, "out", "", "output recording path (default recording.json)")
	return cmd
}

// newReplayCmd wires `replay`: re-drive a WASM module with a recorded
// input stream and verify module, sample, and terminal hashes match.
func newReplayCmd() *cobra.Command {
	var modulePath string

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "replay a canonical recording against a WASM module and verify determinism",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modulePath == "" {
				return fmt.Errorf("--module is required")
			}
			ctx := context.Background()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read recording: %w", err)
			}
			rec, err := sim.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("parse recording: %w", err)
			}

			wasmBytes, err := os.ReadFile(modulePath)
			if err != nil {
				return fmt.Errorf("read module: %w", err)
			}

			rt := wasmrt.New(ctx, wasmrt.DefaultOptions())
			defer rt.Close(ctx)

			instance, err := rt.Load(ctx, wasmBytes)
			if err != nil {
				return fmt.Errorf("load module: %w", err)
			}
			defer instance.Close(ctx)

			if err := sim.Replay(ctx, instance, rec); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			fmt.Printf("determinism_verified=true terminal_hash=%d\n", rec.TerminalHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&modulePath, "module", "", "path to the WASM module to drive")
	return cmd
}
