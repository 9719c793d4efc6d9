package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is a serial port whose receive side is preloaded by the test.
type fakePort struct {
	mu  sync.Mutex
	rx  bytes.Buffer
	tx  bytes.Buffer
	err error
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rx.Len() == 0 {
		return 0, nil
	}
	return p.rx.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.tx.Write(b)
}

func (p *fakePort) sent() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx.Bytes()...)
}

func newTestDFPlayer(port *fakePort) *DFPlayer {
	p := NewDFPlayer(port, zerolog.Nop())
	p.initTimeout = 100 * time.Millisecond
	p.pollDelay = time.Millisecond
	return p
}

func TestDFFrame(t *testing.T) {
	f := dfFrame(dfCmdPlay, 1, false)
	assert.Equal(t, []byte{0x7E, 0xFF, 0x06, 0x03, 0x00, 0x00, 0x01, 0xFE, 0xF7, 0xEF}, f[:])

	f = dfFrame(dfCmdVolume, 25, false)
	assert.Equal(t, []byte{0x7E, 0xFF, 0x06, 0x06, 0x00, 0x00, 0x19, 0xFE, 0xDC, 0xEF}, f[:])

	f = dfFrame(dfCmdPlayMp3, 255, true)
	assert.Equal(t, byte(1), f[4])
	assert.Equal(t, byte(0x00), f[5])
	assert.Equal(t, byte(0xFF), f[6])
}

func TestDFChecksumRoundTrip(t *testing.T) {
	for _, param := range []uint16{0, 1, 30, 255, 0x1234} {
		f := dfFrame(dfCmdPlayMp3, param, false)
		var sum uint16
		for _, b := range f[1:7] {
			sum += uint16(b)
		}
		ck := uint16(f[7])<<8 | uint16(f[8])
		assert.Equal(t, uint16(0), sum+ck, "param %d", param)
	}
}

func TestDFPlayerCommands(t *testing.T) {
	port := &fakePort{}
	p := newTestDFPlayer(port)

	require.NoError(t, p.SetVolume(40))
	require.NoError(t, p.Play(1))
	require.NoError(t, p.Pause())
	require.NoError(t, p.Start())
	require.NoError(t, p.PlayFolder(12))

	var want []byte
	for _, f := range [][dfFrameSz]byte{
		dfFrame(dfCmdVolume, dfMaxVolume, false),
		dfFrame(dfCmdPlay, 1, false),
		dfFrame(dfCmdPause, 0, false),
		dfFrame(dfCmdStart, 0, false),
		dfFrame(dfCmdPlayMp3, 12, false),
	} {
		want = append(want, f[:]...)
	}
	assert.Equal(t, want, port.sent())
}

func TestDFPlayerInit(t *testing.T) {
	port := &fakePort{}
	// line noise, a corrupt frame, an unrelated frame, then init done
	port.rx.Write([]byte{0x00, 0x13})
	bad := dfFrame(dfRespInitDone, 2, false)
	bad[8] ^= 0xFF
	port.rx.Write(bad[:])
	ack := dfFrame(dfRespAck, 0, false)
	port.rx.Write(ack[:])
	done := dfFrame(dfRespInitDone, 2, false)
	port.rx.Write(done[:])

	p := newTestDFPlayer(port)
	require.NoError(t, p.Init(context.Background()))

	reset := dfFrame(dfCmdReset, 0, false)
	assert.Equal(t, reset[:], port.sent())
}

func TestDFPlayerInitTimeout(t *testing.T) {
	p := newTestDFPlayer(&fakePort{})
	assert.ErrorIs(t, p.Init(context.Background()), ErrNoInit)
}

func TestDFPlayerInitErrorFrame(t *testing.T) {
	port := &fakePort{}
	f := dfFrame(dfRespError, 1, false)
	port.rx.Write(f[:])

	err := newTestDFPlayer(port).Init(context.Background())
	assert.ErrorIs(t, err, ErrNoInit)
	assert.Contains(t, err.Error(), "error code 1")
}

func TestDFPlayerWriteError(t *testing.T) {
	port := &fakePort{err: errors.New("unplugged")}
	err := newTestDFPlayer(port).PlayFolder(3)
	assert.ErrorContains(t, err, "unplugged")
}
