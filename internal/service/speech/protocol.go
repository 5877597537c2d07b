package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎双向流式语音协议：4 字节头 + 可选序号/事件字段 + payload。
const protocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags 低两位描述序号，第三位表示携带事件。
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
	WithEvent              MessageFlags = 0b0100
)

// EventType 服务端事件
type EventType int32

const (
	EventStartConnection    EventType = 1
	EventFinishConnection   EventType = 2
	EventConnectionStarted  EventType = 50
	EventConnectionFailed   EventType = 51
	EventConnectionFinished EventType = 52
	EventSessionStarted     EventType = 150
	EventSessionFinished    EventType = 152
	EventSessionFailed      EventType = 153
)

// Serialization 序列化方式
type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression 压缩方式
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Frame is one binary websocket message.
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression
	// HeaderWords is the header size in 4-byte words; 0 means 1.
	HeaderWords uint8

	Sequence  int32
	Event     EventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *Frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	}
	return false
}

func (f *Frame) hasEvent() bool { return f.Flags&WithEvent != 0 }

// Last reports whether the server marked this as the final packet.
func (f *Frame) Last() bool {
	switch f.Flags & 0b0011 {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	}
	return false
}

// carriesSessionID: connection-level events have no session id.
func carriesSessionID(e EventType) bool {
	switch e {
	case EventStartConnection, EventFinishConnection, EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return false
	}
	return true
}

func carriesConnectID(e EventType) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// MarshalBinary encodes the frame, compressing the payload as declared.
func (f *Frame) MarshalBinary() ([]byte, error) {
	payload, err := compress(f.Payload, f.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(uint8(f.Serialization)<<4 | uint8(f.Compression))
	buf.WriteByte(0)

	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.hasEvent() {
		_ = binary.Write(&buf, binary.BigEndian, int32(f.Event))
		if carriesSessionID(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if carriesConnectID(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}
	if f.Type == ErrorMessage {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	writeSized(&buf, payload)
	return buf.Bytes(), nil
}

// ReadFrame decodes one frame and decompresses its payload.
func ReadFrame(r io.Reader) (*Frame, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", v)
	}

	f := &Frame{
		HeaderWords:   head[0] & 0x0F,
		Type:          MessageType(head[1] >> 4),
		Flags:         MessageFlags(head[1] & 0x0F),
		Serialization: Serialization(head[2] >> 4),
		Compression:   Compression(head[2] & 0x0F),
	}
	if extra := int(f.HeaderWords)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read header extension: %w", err)
		}
	}

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
	}
	if f.hasEvent() {
		var event int32
		if err := binary.Read(r, binary.BigEndian, &event); err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = EventType(event)
		if carriesSessionID(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
			f.SessionID = string(id)
		}
		if carriesConnectID(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
			f.ConnectID = string(id)
		}
	}
	if f.Type == ErrorMessage {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	raw, err := readSized(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if f.Payload, err = decompress(raw, f.Compression); err != nil {
		return nil, err
	}
	return f, nil
}

// NewRequestFrame builds the single full-client request of a synthesis.
func NewRequestFrame(payload []byte, compression Compression) *Frame {
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Compression:   compression,
		Payload:       payload,
	}
}

func writeSized(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func readSized(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("expected %d bytes: %w", size, err)
	}
	return data, nil
}

func compress(data []byte, method Compression) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported compression method %d", method)
}

func decompress(data []byte, method Compression) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		if len(data) == 0 {
			return nil, nil
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported compression method %d", method)
}
