package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// RecordType names the command a journal record carries.
type RecordType uint8

const (
	RecordLimitOrders RecordType = iota + 1
	RecordCancelOrders
	RecordClaimCoins
	RecordClaimItems
	RecordClaimAll
	RecordSetItemConfigs
	RecordSetMaxOrders
	RecordSetFees
	RecordSetRoyalty
)

// Record is one journaled command. Payload is the JSON encoding of the
// command arguments; Seq is the global command sequence.
type Record struct {
	Type    RecordType
	Seq     uint64
	Time    int64
	Payload []byte
}

func NewRecord(t RecordType, seq uint64, payload []byte) *Record {
	return &Record{Type: t, Seq: seq, Time: time.Now().UnixNano(), Payload: payload}
}

// Frame layout: [type:1][seq:8][time:8][len:4][payload][crc:4], big
// endian, CRC-32 (IEEE) over everything before it.
const headerSize = 1 + 8 + 8 + 4

var (
	errShortFrame = errors.New("wal: truncated frame")
	errBadCRC     = errors.New("wal: frame checksum mismatch")
)

func (r *Record) encode() []byte {
	buf := make([]byte, headerSize+len(r.Payload)+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(r.Payload)))
	copy(buf[headerSize:], r.Payload)
	sum := crc32.ChecksumIEEE(buf[:headerSize+len(r.Payload)])
	binary.BigEndian.PutUint32(buf[headerSize+len(r.Payload):], sum)
	return buf
}

// decodeRecord reads one frame from the front of b and returns the bytes
// consumed. A short or corrupt frame ends the segment; replay treats it
// as the torn tail of an interrupted write.
func decodeRecord(b []byte) (*Record, int, error) {
	if len(b) < headerSize+4 {
		return nil, 0, errShortFrame
	}
	n := int(binary.BigEndian.Uint32(b[17:21]))
	total := headerSize + n + 4
	if len(b) < total {
		return nil, 0, errShortFrame
	}
	want := binary.BigEndian.Uint32(b[headerSize+n : total])
	if crc32.ChecksumIEEE(b[:headerSize+n]) != want {
		return nil, 0, errBadCRC
	}
	payload := make([]byte, n)
	copy(payload, b[headerSize:headerSize+n])
	return &Record{
		Type:    RecordType(b[0]),
		Seq:     binary.BigEndian.Uint64(b[1:9]),
		Time:    int64(binary.BigEndian.Uint64(b[9:17])),
		Payload: payload,
	}, total, nil
}
