// Package protocol implements the binary wire protocol spoken with the
// companion app and the channel that carries it.
//
// Every message starts with a one-byte discriminant followed by its fields.
// There is no length envelope: strings are a big-endian uint16 byte length
// followed by UTF-8, integers are big-endian int32 and booleans a single byte.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxStringSize is the largest encodable string in bytes
const MaxStringSize = 65535

// FrameErrorKind classifies encoding and decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a message cut off mid-field.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a string exceeding MaxStringSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a field with an invalid value.
	FrameErrorDecode
	// FrameErrorUnknownKind indicates a discriminant without a known message.
	FrameErrorUnknownKind
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too large"
	case FrameErrorDecode:
		return "decode"
	case FrameErrorUnknownKind:
		return "unknown kind"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError represents a message encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream can no longer be trusted to be aligned
// on a message boundary.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Writer encodes primitive fields
type Writer struct {
	w   io.Writer
	buf [4]byte
}

// NewWriter creates a writer on w. Callers that need atomic messages should
// write into a buffer first.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteByte(b byte) error {
	w.buf[0] = b
	_, err := w.w.Write(w.buf[:1])
	return err
}

// WriteUTF writes s as a uint16 byte length followed by its UTF-8 bytes
func (w *Writer) WriteUTF(s string) error {
	if len(s) > MaxStringSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("string of %d bytes exceeds maximum %d", len(s), MaxStringSize),
		}
	}
	binary.BigEndian.PutUint16(w.buf[:2], uint16(len(s)))
	if _, err := w.w.Write(w.buf[:2]); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, s)
	return err
}

func (w *Writer) WriteInt32(v int32) error {
	binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
	_, err := w.w.Write(w.buf[:4])
	return err
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// Reader decodes primitive fields. Errors reading a field are reported as
// partial frame errors; callers read the discriminant with ReadByte to tell
// a clean end of stream apart.
type Reader struct {
	r   io.Reader
	buf [4]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadByte returns the underlying read error unchanged, io.EOF included
func (r *Reader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(r.r, r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) ReadUTF() (string, error) {
	if _, err := io.ReadFull(r.r, r.buf[:2]); err != nil {
		return "", partial("failed to read string length", err)
	}
	n := binary.BigEndian.Uint16(r.buf[:2])
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return "", partial("failed to read string", err)
	}
	return string(data), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, partial("failed to read int", err)
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) ReadBool() (bool, error) {
	if _, err := io.ReadFull(r.r, r.buf[:1]); err != nil {
		return false, partial("failed to read bool", err)
	}
	return r.buf[0] != 0, nil
}

func partial(msg string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &FrameError{Kind: FrameErrorPartial, Msg: msg, Err: err}
}
