package block

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/mezonai/blockfs/errx"
)

// ID identifies a block within one repository. IDs are totally ordered by
// their integer value and usable as map keys. The zero value is the null id;
// it is never generated and never accepted from callers.
type ID uint64

// NullID is the reserved invalid identifier.
const NullID ID = 0

// IsNull reports whether the id is the reserved invalid identifier.
func (id ID) IsNull() bool { return id == NullID }

// String renders the id as zero-padded hex, e.g. "00000000deadbeef".
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// MarshalText renders the id in its canonical hex form, so JSON and other
// textual encodings carry the same rendering as logs and the CLI.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText inverts MarshalText.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID inverts ID.String. It also accepts unpadded hex.
func ParseID(s string) (ID, error) {
	if s == "" {
		return NullID, errx.New(errx.CodeInvalidState, "empty block id")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return NullID, errx.Wrapf(errx.CodeInvalidState, err, "malformed block id %q", s)
	}
	id := ID(v)
	if id.IsNull() {
		return NullID, errx.New(errx.CodeInvalidState, "null block id")
	}
	return id, nil
}

// GenerateID draws a uniformly random non-null id from the OS entropy pool.
// Collision checking against existing blocks is the manager's job.
func GenerateID() (ID, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return NullID, errx.Wrap(errx.CodeIO, "id generation failed", err)
		}
		id := ID(binary.BigEndian.Uint64(buf[:]))
		if !id.IsNull() {
			return id, nil
		}
	}
}
