package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	recordFormatVersionCurrent = 1
)

var (
	// ErrCorrupt indicates bytes that are not a valid encoded Record.
	ErrCorrupt = errors.New("session: corrupt record encoding")
	// ErrInvalidRecord indicates a Record that cannot be encoded.
	ErrInvalidRecord = errors.New("session: invalid record")
)

// Encode serializes r using the current format version. Timestamps are
// stored with millisecond precision.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.SessionID == "" || r.UserID == "" {
		return nil, fmt.Errorf("%w: missing identifier", ErrInvalidRecord)
	}
	if !r.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRecord, r.Role)
	}
	if err := checkOrdering(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var buf bytes.Buffer
	buf.Grow(64 + len(r.UserAgent) + len(r.RefreshToken) + 16*len(r.Permissions))
	buf.WriteByte(recordFormatVersionCurrent)

	for _, f := range []struct {
		name, value string
	}{
		{"sessionID", r.SessionID},
		{"userID", r.UserID},
		{"role", string(r.Role)},
	} {
		if err := writeShort(&buf, f.name, f.value); err != nil {
			return nil, err
		}
	}

	if len(r.Permissions) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: too many permissions", ErrInvalidRecord)
	}
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(r.Permissions)))
	for i, p := range r.Permissions {
		if i > 0 && r.Permissions[i-1] >= p {
			return nil, fmt.Errorf("%w: permissions not sorted and unique", ErrInvalidRecord)
		}
		if err := writeShort(&buf, "permission", p); err != nil {
			return nil, err
		}
	}

	_ = binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, r.LastActivityAt.UnixMilli())

	if err := writeShort(&buf, "ipAddress", r.IPAddress); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, "userAgent", r.UserAgent); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, "refreshToken", r.RefreshToken); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. Any structural problem yields an
// error wrapping ErrCorrupt.
func Decode(data []byte) (*Record, error) {
	d := decoder{data: data}

	version, ok := d.u8()
	if !ok {
		return nil, corrupt("empty input")
	}
	if version != recordFormatVersionCurrent {
		return nil, corrupt("unsupported version %d", version)
	}

	r := &Record{}
	var role string
	for _, dst := range []*string{&r.SessionID, &r.UserID, &role} {
		if *dst, ok = d.short(); !ok {
			return nil, corrupt("truncated identity")
		}
	}
	r.Role = Role(role)
	if !r.Role.Valid() {
		return nil, corrupt("unknown role %q", role)
	}
	if r.SessionID == "" || r.UserID == "" {
		return nil, corrupt("missing identifier")
	}

	count, ok := d.u16()
	if !ok {
		return nil, corrupt("truncated permission count")
	}
	if count > 0 {
		r.Permissions = make([]string, 0, count)
	}
	for i := 0; i < int(count); i++ {
		p, ok := d.short()
		if !ok {
			return nil, corrupt("truncated permission %d", i)
		}
		if i > 0 && r.Permissions[i-1] >= p {
			return nil, corrupt("permissions not sorted and unique")
		}
		r.Permissions = append(r.Permissions, p)
	}

	for _, dst := range []*time.Time{&r.CreatedAt, &r.ExpiresAt, &r.LastActivityAt} {
		ms, ok := d.i64()
		if !ok {
			return nil, corrupt("truncated timestamps")
		}
		*dst = time.UnixMilli(ms).UTC()
	}
	if err := checkOrdering(r); err != nil {
		return nil, corrupt("%v", err)
	}

	if r.IPAddress, ok = d.short(); !ok {
		return nil, corrupt("truncated ip address")
	}
	if r.UserAgent, ok = d.long(); !ok {
		return nil, corrupt("truncated user agent")
	}
	if r.RefreshToken, ok = d.long(); !ok {
		return nil, corrupt("truncated refresh token")
	}

	if d.remaining() != 0 {
		return nil, corrupt("%d trailing bytes", d.remaining())
	}
	return r, nil
}

func checkOrdering(r *Record) error {
	if !r.CreatedAt.Before(r.ExpiresAt) {
		return errors.New("createdAt must precede expiresAt")
	}
	if r.LastActivityAt.Before(r.CreatedAt) {
		return errors.New("lastActivityAt precedes createdAt")
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
}

func writeShort(buf *bytes.Buffer, field, value string) error {
	if len(value) > math.MaxUint8 {
		return fmt.Errorf("%w: %s too long", ErrInvalidRecord, field)
	}
	buf.WriteByte(byte(len(value)))
	buf.WriteString(value)
	return nil
}

func writeLong(buf *bytes.Buffer, field, value string) error {
	if len(value) > math.MaxUint16 {
		return fmt.Errorf("%w: %s too long", ErrInvalidRecord, field)
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(len(value)))
	buf.WriteString(value)
	return nil
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) remaining() int { return len(d.data) - d.off }

func (d *decoder) take(n int) ([]byte, bool) {
	if n < 0 || d.remaining() < n {
		return nil, false
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, true
}

func (d *decoder) u8() (byte, bool) {
	b, ok := d.take(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (d *decoder) u16() (uint16, bool) {
	b, ok := d.take(2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

func (d *decoder) i64() (int64, bool) {
	b, ok := d.take(8)
	if !ok {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b)), true
}

func (d *decoder) short() (string, bool) {
	n, ok := d.u8()
	if !ok {
		return "", false
	}
	b, ok := d.take(int(n))
	return string(b), ok
}

func (d *decoder) long() (string, bool) {
	n, ok := d.u16()
	if !ok {
		return "", false
	}
	b, ok := d.take(int(n))
	return string(b), ok
}
