package playback_test

import (
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"
)

// fakeBuffer hands every append's ready channel to the test so completion
// order can be driven explicitly.
type fakeBuffer struct {
	mu         sync.Mutex
	appended   [][]byte
	readies    []chan error
	appendErr  error
	eosCalls   int
	abortCalls int
	eosErr     error
	autoReady  bool
}

func (b *fakeBuffer) Append(data []byte) (<-chan error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.appendErr != nil {
		return nil, b.appendErr
	}

	b.appended = append(b.appended, data)
	ready := make(chan error, 1)

	if b.autoReady {
		ready <- nil
	}

	b.readies = append(b.readies, ready)

	return ready, nil
}

func (b *fakeBuffer) EndOfStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.eosCalls++

	return b.eosErr
}

func (b *fakeBuffer) Abort() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.abortCalls++

	return nil
}

func (b *fakeBuffer) issued() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.appended)
}

func (b *fakeBuffer) complete(index int, err error) {
	b.mu.Lock()
	ready := b.readies[index]
	b.mu.Unlock()

	ready <- err
}

func (b *fakeBuffer) eos() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.eosCalls
}

type fakeSink struct {
	mu         sync.Mutex
	canPlay    chan struct{}
	ended      chan error
	playCalls  int
	pauseCalls int
	closeCalls int
	playErr    error
}

func newFakeSink(ready bool) *fakeSink {
	sink := &fakeSink{canPlay: make(chan struct{}), ended: make(chan error, 1)}
	if ready {
		close(sink.canPlay)
	}

	return sink
}

func (s *fakeSink) CanPlay() <-chan struct{} { return s.canPlay }

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playCalls++

	return s.playErr
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pauseCalls++

	return nil
}

func (s *fakeSink) Ended() <-chan error { return s.ended }

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeCalls++

	return nil
}

func (s *fakeSink) counts() (play, pause, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playCalls, s.pauseCalls, s.closeCalls
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "playback-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}
