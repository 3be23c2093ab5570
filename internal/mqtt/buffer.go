package mqtt

import "log"

// pendingMsg is a serialized message held back while the broker is unreachable.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a bounded FIFO of pending messages. When full, the oldest
// message is dropped; the first drop after each drain is logged.
// Not safe for concurrent use; the caller must synchronize.
type backlog struct {
	msgs    []pendingMsg
	limit   int
	dropped int
	warned  bool
}

func newBacklog(limit int) *backlog {
	return &backlog{
		msgs:  make([]pendingMsg, 0, limit),
		limit: limit,
	}
}

func (b *backlog) push(msg pendingMsg) {
	if len(b.msgs) == b.limit {
		if !b.warned {
			log.Printf("mqtt: backlog full (%d messages), dropping oldest", b.limit)
			b.warned = true
		}
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:b.limit-1]
		b.dropped++
	}
	b.msgs = append(b.msgs, msg)
}

// drain returns the pending messages oldest first and empties the backlog.
// It also returns how many messages were dropped since the previous drain.
func (b *backlog) drain() ([]pendingMsg, int) {
	if len(b.msgs) == 0 && b.dropped == 0 {
		return nil, 0
	}
	out := make([]pendingMsg, len(b.msgs))
	copy(out, b.msgs)
	dropped := b.dropped

	b.msgs = b.msgs[:0]
	b.dropped = 0
	b.warned = false
	return out, dropped
}

func (b *backlog) len() int {
	return len(b.msgs)
}
