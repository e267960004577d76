// Package smp implements the Simple Management Protocol wire format used to
// talk to device-management servers: an 8-byte header followed by a CBOR body.
//
// Example:
//
//	frame := &smp.Frame{
//	    Header:  smp.Header{Op: smp.OpWrite, Group: smp.GroupImage, ID: smp.IDImageUpload, Seq: 1},
//	    Payload: body,
//	}
//
//	data, err := frame.Serialize()
package smp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/mcumgr/limits"
)

// Op identifies the operation of an SMP frame.
type Op uint8

const (
	OpRead Op = iota
	OpReadResponse
	OpWrite
	OpWriteResponse
)

// String returns the protocol name of the operation.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpReadResponse:
		return "read-rsp"
	case OpWrite:
		return "write"
	case OpWriteResponse:
		return "write-rsp"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Response returns the response operation matching a request operation.
func (o Op) Response() Op {
	switch o {
	case OpRead:
		return OpReadResponse
	case OpWrite:
		return OpWriteResponse
	default:
		return o
	}
}

// IsResponse reports whether o is a response operation.
func (o Op) IsResponse() bool {
	return o == OpReadResponse || o == OpWriteResponse
}

// Group identifies the management group a command belongs to.
type Group uint16

const (
	GroupOS    Group = 0
	GroupImage Group = 1
	GroupFS    Group = 8
)

// Command ids within their groups.
const (
	IDEcho        uint8 = 0 // GroupOS
	IDImageUpload uint8 = 1 // GroupImage
	IDFile        uint8 = 0 // GroupFS
)

// Version is the SMP protocol version written into outgoing headers.
const Version uint8 = 1

// HeaderSize is the size of an encoded header.
const HeaderSize = limits.SMPHeaderSize

var (
	// ErrFrameTooShort indicates fewer bytes than a header were supplied.
	ErrFrameTooShort = errors.New("smp frame too short")

	// ErrLengthMismatch indicates the header length disagrees with the body.
	ErrLengthMismatch = errors.New("smp frame length mismatch")
)

// Header is the fixed SMP frame header.
//
// Format: [res:3|ver:2|op:3][flags][length:2][group:2][seq][id], big endian.
type Header struct {
	Op      Op
	Version uint8
	Flags   uint8
	Length  uint16
	Group   Group
	Seq     uint8
	ID      uint8
}

// Marshal encodes the header into HeaderSize bytes.
func (h Header) Marshal() []byte {
	data := make([]byte, HeaderSize)
	data[0] = (h.Version&0x03)<<3 | uint8(h.Op)&0x07
	data[1] = h.Flags
	binary.BigEndian.PutUint16(data[2:4], h.Length)
	binary.BigEndian.PutUint16(data[4:6], uint16(h.Group))
	data[6] = h.Seq
	data[7] = h.ID
	return data
}

// ParseHeader decodes a header from the first HeaderSize bytes of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	return Header{
		Op:      Op(data[0] & 0x07),
		Version: (data[0] >> 3) & 0x03,
		Flags:   data[1],
		Length:  binary.BigEndian.Uint16(data[2:4]),
		Group:   Group(binary.BigEndian.Uint16(data[4:6])),
		Seq:     data[6],
		ID:      data[7],
	}, nil
}

// Frame is a complete SMP message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Serialize converts a frame to a byte slice for transmission. The header
// length is taken from the payload.
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Payload) > 0xFFFF {
		return nil, fmt.Errorf("smp payload of %d bytes exceeds header length field", len(f.Payload))
	}

	h := f.Header
	h.Length = uint16(len(f.Payload))

	result := make([]byte, 0, HeaderSize+len(f.Payload))
	result = append(result, h.Marshal()...)
	result = append(result, f.Payload...)
	return result, nil
}

// Size returns the serialized length of the frame.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// ParseFrame converts a byte slice to a Frame structure.
func ParseFrame(data []byte) (*Frame, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[HeaderSize:]
	if int(h.Length) != len(body) {
		return nil, fmt.Errorf("%w: header says %d, body has %d", ErrLengthMismatch, h.Length, len(body))
	}

	frame := &Frame{Header: h, Payload: make([]byte, len(body))}
	copy(frame.Payload, body)
	return frame, nil
}

// NewResponse builds the response frame for request carrying payload.
func NewResponse(request *Frame, payload []byte) *Frame {
	h := request.Header
	h.Op = h.Op.Response()
	h.Length = uint16(len(payload))
	return &Frame{Header: h, Payload: payload}
}
