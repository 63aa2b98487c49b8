package id

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, i[:])
	return b
}

// String returns the hex representation.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse decodes a hex string produced by String.
func Parse(s string) (ID, bool) {
	var out ID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64
	now    func() time.Time
}

// NewGenerator creates a Generator backed by the system clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Next returns the next ID. If the system clock regresses, the generator pins
// to the last seen millisecond and advances the sequence instead of going
// backwards. If the sequence would overflow within one millisecond, it waits
// for the next millisecond.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	switch {
	case ms > g.lastMs:
		g.lastMs = ms
		g.seq = 0
	case g.seq == math.MaxUint64:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond)
			ms = g.now().UnixMilli()
		}
		g.lastMs = ms
		g.seq = 0
	default:
		g.seq++
	}

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(g.lastMs))
	binary.BigEndian.PutUint64(out[8:16], g.seq)
	return out
}
