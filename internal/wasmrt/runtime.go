// Package wasmrt implements the WASM Runtime Driver of spec.md §4.5 over
// tetratelabs/wazero, a pure-Go WebAssembly runtime. Each Instance owns
// exactly one wazero module instance exclusively (spec.md §5: "WASM
// instances are never shared — each simulation owns its instance
// exclusively") and is single-use after a trap.
package wasmrt

import (
	"context"
	"crypto/sha256"
	"hash/fnv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/paiml/probar/internal/perr"
)

const component = "wasmrt"

// Options bounds the resources an Instance may consume.
type Options struct {
	// MaxMemoryPages caps linear memory at MaxMemoryPages * 65536 bytes.
	MaxMemoryPages uint32
}

// DefaultOptions caps linear memory at 256 pages (16 MiB), generous for
// a simulation tick's working set without letting a runaway module
// exhaust the host process.
func DefaultOptions() Options { return Options{MaxMemoryPages: 256} }

// Runtime owns the wazero runtime and compilation cache shared by every
// Instance it loads.
type Runtime struct {
	rt  wazero.Runtime
	opt Options
}

// New constructs a Runtime bounded by opt.
func New(ctx context.Context, opt Options) *Runtime {
	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(opt.MaxMemoryPages)
	return &Runtime{rt: wazero.NewRuntimeWithConfig(ctx, cfg), opt: opt}
}

// Close tears down every instance the runtime compiled.
func (r *Runtime) Close(ctx context.Context) error { return r.rt.Close(ctx) }

// Instance is one loaded, instantiated WASM module. After a trap, Step,
// Call, MemoryView and HashState return RuntimeTrap{kind: "poisoned"} —
// the instance is not reusable.
type Instance struct {
	mod        api.Module
	moduleHash [32]byte
	poisoned   bool
}

// Load validates wasmBytes, instantiates it, and returns an Instance.
func (r *Runtime) Load(ctx context.Context, wasmBytes []byte) (*Instance, error) {
	compiled, err := r.rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, perr.New(perr.KindValidationError, component, "load", "module failed validation", err)
	}
	cfg := wazero.NewModuleConfig().WithName("")
	mod, err := r.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, classifyTrapErr("instantiate", err)
	}
	return &Instance{mod: mod, moduleHash: ContentHash(wasmBytes)}, nil
}

// ContentHash is the stable 32-byte digest of a module's bytes used as
// its identity in recordings (spec.md §6's recording file format).
func ContentHash(wasmBytes []byte) [32]byte {
	return sha256.Sum256(wasmBytes)
}

// Step advances the module by one simulation tick, invoking its exported
// "step" function with inputs, per spec.md §4.5.
func (in *Instance) Step(ctx context.Context, inputs []uint64) ([]uint64, error) {
	return in.Call(ctx, "step", inputs)
}

// Call invokes the exported function name with args.
func (in *Instance) Call(ctx context.Context, name string, args []uint64) ([]uint64, error) {
	if in.poisoned {
		return nil, &perr.RuntimeTrap{TrapKind: "poisoned", Cause: nil}
	}
	fn := in.mod.ExportedFunction(name)
	if fn == nil {
		return nil, perr.New(perr.KindValidationError, component, "call", "no such export: "+name, nil)
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		in.poisoned = true
		return nil, classifyTrapErr(name, err)
	}
	return results, nil
}

// MemoryView returns a copy of [offset, offset+length) of linear
// memory. Because it is a copy, later Steps and Close do not change it.
func (in *Instance) MemoryView(offset, length uint32) ([]byte, error) {
	if in.poisoned {
		return nil, &perr.RuntimeTrap{TrapKind: "poisoned"}
	}
	mem := in.mod.Memory()
	if mem == nil {
		return nil, &perr.RuntimeTrap{TrapKind: "no_memory"}
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, &perr.RuntimeTrap{TrapKind: "out_of_bounds"}
	}
	view := make([]byte, len(data))
	copy(view, data)
	return view, nil
}

// HashState computes the canonical 64-bit digest over the observable
// state (linear memory plus a stable subset of exports), per spec.md
// §4.5.
func (in *Instance) HashState(exportNames ...string) (uint64, error) {
	if in.poisoned {
		return 0, &perr.RuntimeTrap{TrapKind: "poisoned"}
	}
	h := fnv.New64a()
	if mem := in.mod.Memory(); mem != nil {
		if size := mem.Size(); size > 0 {
			data, ok := mem.Read(0, size)
			if !ok {
				return 0, &perr.RuntimeTrap{TrapKind: "out_of_bounds"}
			}
			h.Write(data)
		}
	}
	for _, name := range exportNames {
		global := in.mod.ExportedGlobal(name)
		if global == nil {
			continue
		}
		var buf [8]byte
		putUint64(buf[:], global.Get())
		h.Write(buf[:])
	}
	return h.Sum64(), nil
}

// Close tears down the instance.
func (in *Instance) Close(ctx context.Context) error {
	return in.mod.Close(ctx)
}

// ModuleHash returns the content hash of the module this instance was
// loaded from.
func (in *Instance) ModuleHash() [32]byte { return in.moduleHash }

func classifyTrapErr(op string, err error) error {
	msg := err.Error()
	kind := "unknown"
	switch {
	case strings.Contains(msg, "out of bounds"):
		kind = "out_of_bounds"
	case strings.Contains(msg, "stack"):
		kind = "stack_exhaustion"
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled"):
		kind = "timeout"
	case strings.Contains(msg, "unreachable"):
		kind = "unreachable"
	}
	return &perr.RuntimeTrap{TrapKind: kind, Cause: err}
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}
