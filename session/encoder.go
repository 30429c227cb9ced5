package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const (
	recordFormatVersionCurrent = 1

	flagDataConsent   = 1 << 0
	flagEmailVerified = 1 << 1
)

var errRecordCorrupt = errors.New("session record corrupt")

// Encode serializes a record into the compact binary layout stored in Redis.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(r.DisplayName) + len(r.Email))

	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeString8(&buf, r.ID); err != nil {
		return nil, errors.New("id too long")
	}
	if err := writeString16(&buf, r.DisplayName); err != nil {
		return nil, errors.New("display name too long")
	}
	if err := writeString16(&buf, r.Email); err != nil {
		return nil, errors.New("email too long")
	}
	if err := writeString8(&buf, r.Origin); err != nil {
		return nil, errors.New("origin too long")
	}
	if err := writeString8(&buf, r.VerificationCode); err != nil {
		return nil, errors.New("verification code too long")
	}

	var flags byte
	if r.DataConsent {
		flags |= flagDataConsent
	}
	if r.EmailVerified {
		flags |= flagEmailVerified
	}
	buf.WriteByte(flags)

	for _, ts := range []time.Time{r.CreatedAt, r.UpdatedAt, r.CompletedAt, r.VerificationExpiresAt, r.LastResendAt} {
		if err := binary.Write(&buf, binary.BigEndian, toMillis(ts)); err != nil {
			return nil, err
		}
	}

	for _, n := range []int{r.VerificationAttempts, r.MaxVerificationAttempts, r.ResendAttempts, r.MaxResendAttempts} {
		if n < 0 || n > math.MaxUint16 {
			return nil, errors.New("counter out of range")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(n)); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, r.Version); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}
	if r.ID, err = readString8(reader); err != nil {
		return nil, err
	}
	if r.DisplayName, err = readString16(reader); err != nil {
		return nil, err
	}
	if r.Email, err = readString16(reader); err != nil {
		return nil, err
	}
	if r.Origin, err = readString8(reader); err != nil {
		return nil, err
	}
	if r.VerificationCode, err = readString8(reader); err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}
	r.DataConsent = flags&flagDataConsent != 0
	r.EmailVerified = flags&flagEmailVerified != 0

	for _, ts := range []*time.Time{&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.VerificationExpiresAt, &r.LastResendAt} {
		var ms int64
		if err := binary.Read(reader, binary.BigEndian, &ms); err != nil {
			return nil, errRecordCorrupt
		}
		*ts = fromMillis(ms)
	}

	for _, n := range []*int{&r.VerificationAttempts, &r.MaxVerificationAttempts, &r.ResendAttempts, &r.MaxResendAttempts} {
		var v uint16
		if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
			return nil, errRecordCorrupt
		}
		*n = int(v)
	}

	if err := binary.Read(reader, binary.BigEndian, &r.Version); err != nil {
		return nil, errRecordCorrupt
	}
	if reader.Len() != 0 {
		return nil, errRecordCorrupt
	}

	return r, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func writeString8(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint8 {
		return errRecordCorrupt
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errRecordCorrupt
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
	return nil
}

func readString8(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", errRecordCorrupt
	}
	return readN(reader, int(n))
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", errRecordCorrupt
	}
	return readN(reader, int(n))
}

func readN(reader *bytes.Reader, n int) (string, error) {
	if n > reader.Len() {
		return "", errRecordCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", errRecordCorrupt
	}
	return string(b), nil
}
