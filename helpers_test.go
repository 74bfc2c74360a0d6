package msgstream

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"sync"
	"testing"
	"time"
)

// stubMessage is a minimal Message for tests.
type stubMessage struct {
	id   int32
	body string
}

func (m stubMessage) TypeID() int32 {
	return m.id
}

// stubCodec encodes a stubMessage body as raw bytes.
type stubCodec struct {
	id        int32
	encodeErr error
	decodeErr error
}

func (c stubCodec) TypeID() int32 {
	return c.id
}

func (c stubCodec) Encode(message Message) ([]byte, error) {
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return []byte(message.(stubMessage).body), nil
}

func (c stubCodec) Decode(body []byte) (Message, error) {
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return stubMessage{id: c.id, body: string(body)}, nil
}

func (c stubCodec) Equal(a, b Message) bool {
	return a.(stubMessage) == b.(stubMessage)
}

func (c stubCodec) Hash(message Message) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(message.(stubMessage).body))
	return h.Sum64()
}

func newStubRegistry(t *testing.T, ids ...int32) *Registry {
	t.Helper()

	codecs := make([]Codec, 0, len(ids))
	for _, id := range ids {
		codecs = append(codecs, stubCodec{id: id})
	}
	registry, err := NewRegistry(codecs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry
}

// wireFrame builds the bytes a channel writes for a stubMessage.
func wireFrame(id int32, body string) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, uint32(id))
	payload = append(payload, body...)
	frame, err := EncodeFrame(payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// recorder collects everything a channel delivers.
type recorder struct {
	ch chan Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Message, 4096)}
}

func (r *recorder) policy(lost Sentinel) Policy {
	return Policy{
		Deliver:      func(m Message) { r.ch <- m },
		LostSentinel: func() Message { return lost },
	}
}

func (r *recorder) next(t *testing.T) Message {
	t.Helper()

	select {
	case m := <-r.ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for delivery")
		return nil
	}
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case m := <-r.ch:
		t.Fatalf("unexpected delivery: %v", m)
	case <-time.After(wait):
	}
}

// count drains the recorder and counts deliveries equal to m.
func (r *recorder) count(m Message) int {
	n := 0
	for {
		select {
		case got := <-r.ch:
			if got == m {
				n++
			}
		default:
			return n
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// scriptedStream hands out queued read results one Read at a time and
// records writes. Reads block until a result is queued or the stream closes.
type scriptedStream struct {
	reads chan readResult

	mu       sync.Mutex
	written  []byte
	writeErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{
		reads:  make(chan readResult, 1024),
		closed: make(chan struct{}),
	}
}

func (s *scriptedStream) Read(p []byte) (int, error) {
	select {
	case r := <-s.reads:
		return copy(p, r.data), r.err
	case <-s.closed:
		return 0, io.ErrClosedPipe
	}
}

func (s *scriptedStream) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedStream) feed(data []byte) {
	s.reads <- readResult{data: data}
}

func (s *scriptedStream) fail(err error) {
	s.reads <- readResult{err: err}
}

func (s *scriptedStream) setWriteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *scriptedStream) bytesWritten() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for connection to stop")
	}
}
