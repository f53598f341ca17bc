// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"errors"
	"fmt"
	"math"

	"github.com/lithdew/bytesutil"
	"github.com/valyala/bytebufferpool"
)

// ErrorCode is the numeric code carried by an error [*Answer].
type ErrorCode int32

// Error codes synthesized by this package.
const (
	CodeOK                ErrorCode = 0
	CodeUnknownError      ErrorCode = 20001
	CodeConnectionClosed  ErrorCode = 20002
	CodeTimeout           ErrorCode = 20003
	CodeUnknownMethod     ErrorCode = 20004
	CodeEncoding          ErrorCode = 20005
	CodeDecoding          ErrorCode = 20006
	CodeSendError         ErrorCode = 20007
	CodeWorkQueueFull     ErrorCode = 20009
	CodeInvalidConnection ErrorCode = 20012
)

// Codec errors.
var (
	ErrShortPacket     = errors.New("udprpc: short packet")
	ErrBadMagic        = errors.New("udprpc: bad packet magic")
	ErrBadVersion      = errors.New("udprpc: unsupported packet version")
	ErrBadKind         = errors.New("udprpc: unknown packet kind")
	ErrPacketTooLarge  = errors.New("udprpc: packet exceeds datagram size")
	ErrOneWayQuest     = errors.New("udprpc: one-way quest has no answer")
	ErrTrailingGarbage = errors.New("udprpc: trailing bytes after packet")
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

const (
	packetMagic0  = 0x55
	packetMagic1  = 0x52
	packetVersion = 1
	headerSize    = 8
)

type packetKind uint8

const (
	kindOneWayQuest packetKind = iota
	kindTwoWayQuest
	kindAnswer
)

// Quest is an RPC request.
type Quest struct {
	// Method is the name of the remote method.
	Method string

	// Payload is the opaque request body.
	Payload []byte

	// Seq correlates a two-way quest with its answer.
	Seq uint32

	// TwoWay is true when the sender expects an answer.
	TwoWay bool
}

// IsTwoWay returns whether the quest obligates an answer.
func (q *Quest) IsTwoWay() bool {
	return q.TwoWay
}

// Raw serializes the quest into a datagram.
func (q *Quest) Raw() ([]byte, error) {
	if len(q.Method) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: method name of %d bytes", ErrPacketTooLarge, len(q.Method))
	}
	kind := kindOneWayQuest
	if q.TwoWay {
		kind = kindTwoWayQuest
	}
	return marshal(func(dst []byte) []byte {
		dst = appendHeader(dst, kind, q.Seq)
		dst = bytesutil.AppendUint16BE(dst, uint16(len(q.Method)))
		dst = append(dst, q.Method...)
		dst = bytesutil.AppendUint32BE(dst, uint32(len(q.Payload)))
		return append(dst, q.Payload...)
	})
}

// Answer is the response to a two-way [*Quest].
type Answer struct {
	// Seq is the sequence number of the quest being answered.
	Seq uint32

	// Code is [CodeOK] for a normal answer.
	Code ErrorCode

	// Message describes the error for non-OK answers.
	Message string

	// Payload is the opaque response body.
	Payload []byte
}

// NewAnswer returns a normal answer to quest.
func NewAnswer(quest *Quest, payload []byte) (*Answer, error) {
	if !quest.TwoWay {
		return nil, ErrOneWayQuest
	}
	return &Answer{Seq: quest.Seq, Payload: payload}, nil
}

// NewErrorAnswer returns an error answer to quest.
func NewErrorAnswer(quest *Quest, code ErrorCode, message string) (*Answer, error) {
	if !quest.TwoWay {
		return nil, ErrOneWayQuest
	}
	return &Answer{Seq: quest.Seq, Code: code, Message: message}, nil
}

// IsError returns whether the answer carries an error code.
func (a *Answer) IsError() bool {
	return a.Code != CodeOK
}

// Err returns the answer error as an [*AnswerError], or nil.
func (a *Answer) Err() error {
	if !a.IsError() {
		return nil
	}
	return &AnswerError{Code: a.Code, Message: a.Message}
}

// Raw serializes the answer into a datagram.
func (a *Answer) Raw() ([]byte, error) {
	if len(a.Message) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: message of %d bytes", ErrPacketTooLarge, len(a.Message))
	}
	return marshal(func(dst []byte) []byte {
		dst = appendHeader(dst, kindAnswer, a.Seq)
		dst = bytesutil.AppendUint32BE(dst, uint32(a.Code))
		dst = bytesutil.AppendUint16BE(dst, uint16(len(a.Message)))
		dst = append(dst, a.Message...)
		dst = bytesutil.AppendUint32BE(dst, uint32(len(a.Payload)))
		return append(dst, a.Payload...)
	})
}

// AnswerError is the error form of an error [*Answer].
type AnswerError struct {
	Code    ErrorCode
	Message string
}

// Error implements error.
func (e *AnswerError) Error() string {
	return fmt.Sprintf("udprpc: answer error (%d): %s", e.Code, e.Message)
}

// DecodePacket parses a datagram into either a quest or an answer.
func DecodePacket(buf []byte) (*Quest, *Answer, error) {
	if len(buf) < headerSize {
		return nil, nil, ErrShortPacket
	}
	if buf[0] != packetMagic0 || buf[1] != packetMagic1 {
		return nil, nil, ErrBadMagic
	}
	if buf[2] != packetVersion {
		return nil, nil, ErrBadVersion
	}
	kind, seq := packetKind(buf[3]), bytesutil.Uint32BE(buf[4:8])
	body := buf[headerSize:]

	switch kind {
	case kindOneWayQuest, kindTwoWayQuest:
		method, rest, err := readString16(body)
		if err != nil {
			return nil, nil, err
		}
		payload, rest, err := readBytes32(rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) > 0 {
			return nil, nil, ErrTrailingGarbage
		}
		return &Quest{Method: method, Payload: payload, Seq: seq, TwoWay: kind == kindTwoWayQuest}, nil, nil

	case kindAnswer:
		if len(body) < 4 {
			return nil, nil, ErrShortPacket
		}
		code := ErrorCode(int32(bytesutil.Uint32BE(body[:4])))
		message, rest, err := readString16(body[4:])
		if err != nil {
			return nil, nil, err
		}
		payload, rest, err := readBytes32(rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) > 0 {
			return nil, nil, ErrTrailingGarbage
		}
		return nil, &Answer{Seq: seq, Code: code, Message: message, Payload: payload}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrBadKind, kind)
	}
}

// marshal runs fn over a pooled buffer and returns a private copy.
func marshal(fn func(dst []byte) []byte) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	bb.B = fn(bb.B[:0])
	if len(bb.B) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(bb.B))
	}
	return append([]byte(nil), bb.B...), nil
}

func appendHeader(dst []byte, kind packetKind, seq uint32) []byte {
	dst = append(dst, packetMagic0, packetMagic1, packetVersion, byte(kind))
	return bytesutil.AppendUint32BE(dst, seq)
}

func readString16(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrShortPacket
	}
	size := int(bytesutil.Uint16BE(buf[:2]))
	buf = buf[2:]
	if len(buf) < size {
		return "", nil, ErrShortPacket
	}
	return string(buf[:size]), buf[size:], nil
}

func readBytes32(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrShortPacket
	}
	size := bytesutil.Uint32BE(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < size {
		return nil, nil, ErrShortPacket
	}
	return append([]byte(nil), buf[:size]...), buf[size:], nil
}
