package wayland

import "fmt"

// Request argument encoders. Wayland marshals every argument to a 4-byte
// aligned little-endian field; strings carry a length (including the null
// terminator) and pad to alignment.

func Uint32(v uint32) []byte {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return b
}

func Int32(v int32) []byte {
	return Uint32(uint32(v))
}

func String(s string) []byte {
	raw := append([]byte(s), 0)
	padded := (len(raw) + 3) &^ 3
	buf := make([]byte, 4+padded)
	le.PutUint32(buf[0:], uint32(len(raw)))
	copy(buf[4:], raw)
	return buf
}

// Args reads event arguments in declaration order. The first malformed field
// latches an error; callers check Err once after reading.
type Args struct {
	b   []byte
	err error
}

// NewArgs wraps an event payload for reading. Exposed so protocol users can
// feed synthetic events through their handlers in tests.
func NewArgs(payload []byte) *Args {
	return &Args{b: payload}
}

func (a *Args) Err() error { return a.err }

func (a *Args) Uint32() uint32 {
	if a.err != nil {
		return 0
	}
	if len(a.b) < 4 {
		a.err = fmt.Errorf("wayland: short uint argument")
		return 0
	}
	v := le.Uint32(a.b[:4])
	a.b = a.b[4:]
	return v
}

func (a *Args) Int32() int32 {
	return int32(a.Uint32())
}

// Fixed decodes a wl_fixed value: signed 24.8 fixed point.
func (a *Args) Fixed() float64 {
	return float64(a.Int32()) / 256.0
}

func (a *Args) String() string {
	if a.err != nil {
		return ""
	}
	if len(a.b) < 4 {
		a.err = fmt.Errorf("wayland: short string length field")
		return ""
	}
	length := int(le.Uint32(a.b[:4]))
	a.b = a.b[4:]
	if length == 0 {
		return ""
	}
	padded := (length + 3) &^ 3
	if len(a.b) < padded {
		a.err = fmt.Errorf("wayland: short string data")
		return ""
	}
	s := string(a.b[:length-1]) // drop null terminator
	a.b = a.b[padded:]
	return s
}
