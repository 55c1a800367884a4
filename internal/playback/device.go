// Package playback drives progressive audio playback for a synthesis session.
//
// A Device opens a Buffer, which absorbs encoded audio one append at a time,
// and a Sink, which produces sound from whatever the buffer holds so far.
// The Appender serializes writes into the Buffer and the Session owns the
// state machine around both.
package playback

import (
	"context"
	"sync"
)

// Buffer is the progressive playback primitive. It absorbs one append at a
// time and reports asynchronously when the next one may be submitted.
type Buffer interface {
	// Append starts absorbing data. The returned channel delivers exactly one
	// value, nil on success, once another append may be submitted. Append must
	// not be called again before that value is delivered.
	Append(data []byte) (<-chan error, error)
	// EndOfStream signals that no more data will arrive.
	EndOfStream() error
	// Abort discards any data not yet absorbed.
	Abort() error
}

// Sink produces audio from a Buffer.
type Sink interface {
	// CanPlay is closed once the sink is able to produce samples.
	CanPlay() <-chan struct{}
	Play() error
	Pause() error
	// Ended delivers nil once every buffered sample was played after
	// EndOfStream, or the fault that stopped the sink.
	Ended() <-chan error
	// Close releases the underlying audio resources.
	Close() error
}

// Device opens a buffer and its sink for one session.
type Device interface {
	Open(ctx context.Context, contentType string) (Buffer, Sink, error)
}

// NullDevice accepts audio and plays nothing. Used for headless runs where
// only the accumulated asset matters.
type NullDevice struct{}

// Open implements Device.
func (NullDevice) Open(_ context.Context, _ string) (Buffer, Sink, error) {
	player := &nullPlayer{
		canPlay: make(chan struct{}),
		ended:   make(chan error, 1),
	}
	close(player.canPlay)

	return player, player, nil
}

type nullPlayer struct {
	canPlay chan struct{}
	ended   chan error
	eosOnce sync.Once
}

func (n *nullPlayer) Append(_ []byte) (<-chan error, error) {
	ready := make(chan error, 1)
	ready <- nil

	return ready, nil
}

func (n *nullPlayer) EndOfStream() error {
	n.eosOnce.Do(func() { n.ended <- nil })

	return nil
}

func (n *nullPlayer) Abort() error             { return nil }
func (n *nullPlayer) CanPlay() <-chan struct{} { return n.canPlay }
func (n *nullPlayer) Play() error              { return nil }
func (n *nullPlayer) Pause() error             { return nil }
func (n *nullPlayer) Ended() <-chan error      { return n.ended }
func (n *nullPlayer) Close() error             { return nil }
