// Package ulid implements the Universally Unique Lexicographically Sortable
// Identifier used to stamp every persisted message row: 48 bits of
// millisecond Unix time followed by 80 bits of entropy, encoded as 26
// Crockford base-32 characters. A Generator is single-threaded by contract
// (the publish thread owns it exclusively) and guarantees strictly
// increasing output even across identical milliseconds or backward clock
// jumps.
package ulid

import (
	"sync"
	"time"
)

// Generator mints monotonic ULIDs. It is not safe for concurrent use; the
// caller (the event handler, which runs on the broker's single publish
// thread per spec) must serialize access, or wrap a Generator with Locked.
type Generator struct {
	stream   *rc4Stream
	lastMs   uint64
	lastID   [RawLen]byte
	paranoid bool
}

// Options controls Generator construction.
type Options struct {
	// Secure requires the OS CSPRNG to seed the entropy stream; New returns
	// an error if it's unavailable. When false, New falls back to a
	// time/pid-mixed bootstrap rather than failing.
	Secure bool

	// Paranoid clears the high bit of the first entropy byte on every
	// millisecond rollover, leaving headroom so the increment path (taken
	// for every subsequent ULID minted within the same millisecond) cannot
	// itself overflow into the timestamp bytes under any realistic publish
	// rate.
	Paranoid bool
}

// New creates a Generator. With Options{} (the zero value), it prefers
// secure entropy but tolerates its absence.
func New(opts Options) (*Generator, error) {
	key, err := seedKey(opts.Secure)
	if err != nil {
		return nil, err
	}
	return &Generator{
		stream:   newRC4Stream(key),
		paranoid: opts.Paranoid,
	}, nil
}

// Next mints a new ULID whose timestamp prefix is the current millisecond
// (or the last-seen millisecond, if the clock has gone backwards) and whose
// byte representation, as an unsigned big-endian integer, is strictly
// greater than every ULID this Generator has previously returned.
func (g *Generator) Next() string {
	ms := uint64(time.Now().UnixMilli())

	switch {
	case ms < g.lastMs:
		// Clock retreated: reuse the last-seen timestamp and take the
		// increment path so monotonicity still holds.
		g.increment()
	case ms == g.lastMs:
		g.increment()
	default:
		g.lastMs = ms
		putMs(&g.lastID, ms)
		g.stream.fill(g.lastID[6:])
		if g.paranoid {
			g.lastID[6] &^= 0x80
		}
	}

	return encode(g.lastID)
}

// increment adds one to the 80-bit entropy tail, treating it as a big-endian
// integer (byte 15 is least significant; a carry propagates toward byte 6).
// Overflowing all 80 bits is astronomically improbable at any real publish
// rate and is ignored: the counter simply wraps, which cannot happen twice
// within one process's lifetime for this reason.
func (g *Generator) increment() {
	for i := 15; i >= 6; i-- {
		g.lastID[i]++
		if g.lastID[i] != 0 {
			return
		}
	}
}

func putMs(id *[RawLen]byte, ms uint64) {
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)
}

// Timestamp extracts the millisecond Unix timestamp encoded in a ULID's
// first 10 characters. It decodes the whole string, so a wrong length or an
// invalid character anywhere in s is returned as an error.
func Timestamp(s string) (time.Time, error) {
	id, err := decode(s)
	if err != nil {
		return time.Time{}, err
	}
	ms := uint64(id[0])<<40 | uint64(id[1])<<32 | uint64(id[2])<<24 |
		uint64(id[3])<<16 | uint64(id[4])<<8 | uint64(id[5])
	return time.UnixMilli(int64(ms)), nil
}

// Validate reports whether s is a well-formed 26-character ULID.
func Validate(s string) error {
	_, err := decode(s)
	return err
}

// Prefix encodes t's millisecond timestamp with zeroed entropy bytes,
// producing the lexicographic lower bound for any ULID minted at or
// after t. The retention sweeper compares stored ids against this
// boundary with a plain `id < prefix` index range scan.
func Prefix(t time.Time) string {
	var id [RawLen]byte
	putMs(&id, uint64(t.UnixMilli()))
	return encode(id)
}

// Locked wraps a Generator with a mutex for the case where more than one
// goroutine may mint ids against the same instance (e.g. a test driving
// concurrent publishes). The Hook mints every id through a Locked.
type Locked struct {
	mu  sync.Mutex
	gen *Generator
}

// NewLocked wraps gen for concurrent use.
func NewLocked(gen *Generator) *Locked {
	return &Locked{gen: gen}
}

// Next mints a new ULID, serializing concurrent callers.
func (l *Locked) Next() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen.Next()
}
