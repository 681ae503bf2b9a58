package sim

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/paiml/probar/internal/perr"
)

const component = "sim"

var magic = [4]byte{'P', 'B', 'A', 'R'}

const recordingVersion uint16 = 1

// FrameHash is an intermediate state-hash sample taken during recording,
// used by Replay to verify determinism at points other than just the
// terminal frame (spec.md §4.5 "every intermediate state hash matches
// when sampled").
type FrameHash struct {
	Frame uint32
	Hash  uint64
}

// Recording is the canonical byte-layout artifact of spec.md §6:
// magic | version u16 | module_hash 32B | seed u64 | frame_count u32 |
// per_frame_inputs (len-prefixed) | samples (len-prefixed frame u32 +
// hash u64 pairs) | terminal_hash 8B | crc32.
type Recording struct {
	Version        uint16
	ModuleHash     [32]byte
	Seed           uint64
	FrameCount     uint32
	PerFrameInputs [][]uint64
	Samples        []FrameHash
	TerminalHash   uint64
}

// Marshal serializes r into the canonical byte layout.
func (r Recording) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeUint16(&buf, r.Version)
	buf.Write(r.ModuleHash[:])
	writeUint64(&buf, r.Seed)
	writeUint32(&buf, r.FrameCount)

	writeUint32(&buf, uint32(len(r.PerFrameInputs)))
	for _, frame := range r.PerFrameInputs {
		writeUint32(&buf, uint32(len(frame)))
		for _, v := range frame {
			writeUint64(&buf, v)
		}
	}

	writeUint32(&buf, uint32(len(r.Samples)))
	for _, s := range r.Samples {
		writeUint32(&buf, s.Frame)
		writeUint64(&buf, s.Hash)
	}

	writeUint64(&buf, r.TerminalHash)

	sum := crc32.ChecksumIEEE(buf.Bytes())
	writeUint32(&buf, sum)
	return buf.Bytes()
}

// Unmarshal parses a canonical recording, rejecting unrecognized
// versions and mismatched checksums (spec.md §6).
func Unmarshal(data []byte) (Recording, error) {
	if len(data) < 4+2+32+8+4+4 {
		return Recording{}, perr.New(perr.KindValidationError, component, "unmarshal", "truncated recording", nil)
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return Recording{}, perr.New(perr.KindValidationError, component, "unmarshal", "bad magic bytes", nil)
	}

	body := data[:len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])
	gotSum := crc32.ChecksumIEEE(body)
	if wantSum != gotSum {
		return Recording{}, perr.New(perr.KindValidationError, component, "unmarshal", "crc32 mismatch", nil)
	}

	r := reader{data: data[4:]}
	var rec Recording
	rec.Version = r.uint16()
	if rec.Version != recordingVersion {
		return Recording{}, perr.New(perr.KindValidationError, component, "unmarshal", "unrecognized version", nil)
	}
	copy(rec.ModuleHash[:], r.bytes(32))
	rec.Seed = r.uint64()
	rec.FrameCount = r.uint32()

	frameListLen := r.uint32()
	rec.PerFrameInputs = make([][]uint64, frameListLen)
	for i := range rec.PerFrameInputs {
		n := r.uint32()
		frame := make([]uint64, n)
		for j := range frame {
			frame[j] = r.uint64()
		}
		rec.PerFrameInputs[i] = frame
	}

	sampleLen := r.uint32()
	rec.Samples = make([]FrameHash, sampleLen)
	for i := range rec.Samples {
		rec.Samples[i] = FrameHash{Frame: r.uint32(), Hash: r.uint64()}
	}

	rec.TerminalHash = r.uint64()
	if r.err != nil {
		return Recording{}, perr.New(perr.KindValidationError, component, "unmarshal", "truncated recording", r.err)
	}
	return rec, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// reader walks data sequentially, latching the first short-read error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil || r.pos+n > len(r.data) {
		r.err = errShortRead
		return make([]byte, n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) uint16() uint16 { return binary.LittleEndian.Uint16(r.bytes(2)) }
func (r *reader) uint32() uint32 { return binary.LittleEndian.Uint32(r.bytes(4)) }
func (r *reader) uint64() uint64 { return binary.LittleEndian.Uint64(r.bytes(8)) }

var errShortRead = perr.New(perr.KindValidationError, component, "unmarshal", "short read", nil)
