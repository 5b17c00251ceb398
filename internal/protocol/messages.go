package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Kind is the one-byte discriminant leading every message. Values overlap
// between directions, so decoding needs to know which side sent the message.
type Kind byte

// Sent to the companion app.
const (
	// KindHeartbeat carries no fields and has no meaning to the receiver. It
	// is written only to probe whether the connection is still alive.
	KindHeartbeat     Kind = 0
	KindOpenFile      Kind = 1
	KindSearchResults Kind = 2
)

// Received from the companion app.
const (
	KindOpenClass        Kind = 1
	KindNavigateToSymbol Kind = 2
)

// Message is a single discriminant-tagged wire message
type Message interface {
	Kind() Kind
	encode(w *Writer) error
}

// Heartbeat is the reserved no-op message
type Heartbeat struct{}

func (Heartbeat) Kind() Kind             { return KindHeartbeat }
func (Heartbeat) encode(w *Writer) error { return nil }

// OpenFile asks the companion app to show a source file at a line
type OpenFile struct {
	Path string
	Line int32
}

func (OpenFile) Kind() Kind { return KindOpenFile }

func (m OpenFile) encode(w *Writer) error {
	if err := w.WriteUTF(m.Path); err != nil {
		return err
	}
	return w.WriteInt32(m.Line)
}

// SearchResults delivers the outcome of a class or method search
type SearchResults struct {
	Query          string
	Results        []string
	MethodSearch   bool
	ClassesScanned int32
	ElapsedMs      int32
}

func (SearchResults) Kind() Kind { return KindSearchResults }

func (m SearchResults) encode(w *Writer) error {
	if err := w.WriteUTF(m.Query); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(len(m.Results))); err != nil {
		return err
	}
	for _, r := range m.Results {
		if err := w.WriteUTF(r); err != nil {
			return err
		}
	}
	if err := w.WriteBool(m.MethodSearch); err != nil {
		return err
	}
	if err := w.WriteInt32(m.ClassesScanned); err != nil {
		return err
	}
	return w.WriteInt32(m.ElapsedMs)
}

// OpenClass asks the host to decompile and show a class
type OpenClass struct {
	ClassName string
}

func (OpenClass) Kind() Kind { return KindOpenClass }

func (m OpenClass) encode(w *Writer) error {
	return w.WriteUTF(m.ClassName)
}

// NavigateToSymbol asks the host to resolve the symbol at a zero-based
// row and column of a decompiled source file
type NavigateToSymbol struct {
	RelativePath string
	Row          int32
	Column       int32
}

func (NavigateToSymbol) Kind() Kind { return KindNavigateToSymbol }

func (m NavigateToSymbol) encode(w *Writer) error {
	if err := w.WriteUTF(m.RelativePath); err != nil {
		return err
	}
	if err := w.WriteInt32(m.Row); err != nil {
		return err
	}
	return w.WriteInt32(m.Column)
}

// Encode writes the discriminant and fields of msg to w
func Encode(w io.Writer, msg Message) error {
	enc := NewWriter(w)
	if err := enc.WriteByte(byte(msg.Kind())); err != nil {
		return err
	}
	return msg.encode(enc)
}

// Marshal returns the complete encoding of msg. Nothing is returned when a
// field cannot be encoded, so a failed message never reaches the wire.
func Marshal(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInbound reads one message sent by the companion app. A read error on
// the discriminant is returned unchanged so io.EOF marks a clean close.
func DecodeInbound(r *Reader) (Message, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch Kind(b) {
	case KindHeartbeat:
		return Heartbeat{}, nil
	case KindOpenClass:
		name, err := r.ReadUTF()
		if err != nil {
			return nil, err
		}
		return OpenClass{ClassName: name}, nil
	case KindNavigateToSymbol:
		var m NavigateToSymbol
		if m.RelativePath, err = r.ReadUTF(); err != nil {
			return nil, err
		}
		if m.Row, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if m.Column, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, unknownKind(b)
	}
}

// DecodeOutbound reads one message sent to the companion app
func DecodeOutbound(r *Reader) (Message, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch Kind(b) {
	case KindHeartbeat:
		return Heartbeat{}, nil
	case KindOpenFile:
		var m OpenFile
		if m.Path, err = r.ReadUTF(); err != nil {
			return nil, err
		}
		if m.Line, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		return m, nil
	case KindSearchResults:
		return decodeSearchResults(r)
	default:
		return nil, unknownKind(b)
	}
}

func decodeSearchResults(r *Reader) (Message, error) {
	var m SearchResults
	var err error
	if m.Query, err = r.ReadUTF(); err != nil {
		return nil, err
	}
	count, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		// the rest of the message cannot be located
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: fmt.Sprintf("negative result count %d", count)}
	}
	m.Results = make([]string, 0, min(int(count), 1024))
	for range count {
		s, err := r.ReadUTF()
		if err != nil {
			return nil, err
		}
		m.Results = append(m.Results, s)
	}
	if m.MethodSearch, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if m.ClassesScanned, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if m.ElapsedMs, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	return m, nil
}

func unknownKind(b byte) error {
	return &FrameError{Kind: FrameErrorUnknownKind, Msg: fmt.Sprintf("unknown message kind %d", b)}
}
