// Package outbox is a pebble-backed event outbox. Committed commands
// write their events here in the same process step that applied them;
// the broadcaster drains pending entries to Kafka with at-least-once
// delivery, walking each entry through NEW, SENT, ACKED.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one event pending publication. Seq is the command sequence
// that produced it, Index its position inside that command.
type Entry struct {
	Seq         uint64
	Index       uint32
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][payload].
const valueHeader = 1 + 4 + 8

func encodeValue(e *Entry) []byte {
	buf := make([]byte, valueHeader+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[valueHeader:], e.Payload)
	return buf
}

func decodeValue(b []byte, e *Entry) error {
	if len(b) < valueHeader {
		return errors.New("outbox: short entry")
	}
	e.State = State(b[0])
	e.Retries = binary.BigEndian.Uint32(b[1:5])
	e.LastAttempt = int64(binary.BigEndian.Uint64(b[5:13]))
	e.Payload = append([]byte(nil), b[valueHeader:]...)
	return nil
}

func keyFor(seq uint64, index uint32) []byte {
	return []byte(fmt.Sprintf("event/%020d/%010d", seq, index))
}

func parseKey(b []byte) (seq uint64, index uint32, err error) {
	_, err = fmt.Sscanf(string(b), "event/%020d/%010d", &seq, &index)
	return seq, index, err
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error { return o.db.Close() }

// Put records one event of a command as pending. Durable before return;
// the command is not acknowledged until its events are in the outbox.
func (o *Outbox) Put(seq uint64, index uint32, payload []byte) error {
	e := &Entry{Seq: seq, Index: index, State: StateNew, Payload: payload}
	return o.db.Set(keyFor(seq, index), encodeValue(e), pebble.Sync)
}

// ScanPending walks every non-ACKED entry in (seq, index) order.
func (o *Outbox) ScanPending(fn func(*Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := decodeValue(iter.Value(), &e); err != nil {
			return err
		}
		if e.State == StateAcked {
			continue
		}
		if e.Seq, e.Index, err = parseKey(iter.Key()); err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MarkSent moves an entry to SENT and bumps its retry count.
func (o *Outbox) MarkSent(seq uint64, index uint32) error {
	return o.update(seq, index, StateSent, true)
}

// MarkAcked moves an entry to ACKED once the broker accepted it.
func (o *Outbox) MarkAcked(seq uint64, index uint32) error {
	return o.update(seq, index, StateAcked, false)
}

func (o *Outbox) update(seq uint64, index uint32, state State, bumpRetries bool) error {
	key := keyFor(seq, index)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	var e Entry
	decErr := decodeValue(val, &e)
	closer.Close()
	if decErr != nil {
		return decErr
	}
	e.State = state
	if bumpRetries {
		e.Retries++
	}
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(key, encodeValue(&e), pebble.Sync)
}

// PruneAcked deletes ACKED entries with seq <= upTo. The snapshot job
// calls this with the snapshot sequence so the outbox tracks the journal.
func (o *Outbox) PruneAcked(upTo uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	b := o.db.NewBatch()
	defer b.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := decodeValue(iter.Value(), &e); err != nil {
			return err
		}
		if e.State != StateAcked {
			continue
		}
		seq, _, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if seq > upTo {
			break
		}
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return o.db.Apply(b, pebble.Sync)
}
