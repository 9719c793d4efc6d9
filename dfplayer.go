package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// DFPlayer Mini serial protocol. Every frame is
//
//	7E FF 06 CMD FB PH PL CKH CKL EF
//
// where FB requests an ACK and CK is the 16-bit two's complement of the sum
// of bytes 1..6.
const (
	dfStart   = 0x7E
	dfVersion = 0xFF
	dfLength  = 0x06
	dfEnd     = 0xEF
	dfFrameSz = 10

	dfCmdPlay      = 0x03
	dfCmdVolume    = 0x06
	dfCmdReset     = 0x0C
	dfCmdStart     = 0x0D
	dfCmdPause     = 0x0E
	dfCmdPlayMp3   = 0x12
	dfRespInitDone = 0x3F
	dfRespError    = 0x40
	dfRespAck      = 0x41

	dfMaxVolume = 30
)

var ErrNoInit = errors.New("dfplayer not responding")

// DFPlayer drives a DFPlayer Mini over a UART.
type DFPlayer struct {
	mu          sync.Mutex
	port        io.ReadWriter
	closer      io.Closer
	initTimeout time.Duration
	pollDelay   time.Duration
	logger      zerolog.Logger
} // type DFPlayer struct

// OpenDFPlayer opens the serial device at 8N1.
func OpenDFPlayer(name string, baud int, logger zerolog.Logger) (*DFPlayer, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial %s read timeout: %w", name, err)
	}

	p := NewDFPlayer(port, logger)
	p.closer = port
	logger.Info().Str("serial", name).Int("baud", baud).Msg("serial port open")
	return p, nil
} // func OpenDFPlayer

// NewDFPlayer wraps an already open port.
func NewDFPlayer(port io.ReadWriter, logger zerolog.Logger) *DFPlayer {
	return &DFPlayer{
		port:        port,
		initTimeout: 2 * time.Second,
		pollDelay:   10 * time.Millisecond,
		logger:      logger,
	}
} // func NewDFPlayer

func dfChecksum(frame []byte) uint16 {
	var sum uint16
	for _, b := range frame[1:7] {
		sum += uint16(b)
	}
	return -sum
} // func dfChecksum

func dfFrame(cmd byte, param uint16, ack bool) [dfFrameSz]byte {
	f := [dfFrameSz]byte{dfStart, dfVersion, dfLength, cmd, 0, byte(param >> 8), byte(param), 0, 0, dfEnd}
	if ack {
		f[4] = 1
	}
	ck := dfChecksum(f[:])
	f[7] = byte(ck >> 8)
	f[8] = byte(ck)
	return f
} // func dfFrame

func (p *DFPlayer) send(cmd byte, param uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := dfFrame(cmd, param, false)
	if _, err := p.port.Write(f[:]); err != nil {
		return fmt.Errorf("dfplayer write cmd %#02x: %w", cmd, err)
	}
	p.logger.Debug().Hex("frame", f[:]).Msg("dfplayer send")
	return nil
} // func send

// readFrame reads one valid frame, resyncing on the start byte.
// Must be called with p.mu held.
func (p *DFPlayer) readFrame(deadline time.Time) ([dfFrameSz]byte, error) {
	var f [dfFrameSz]byte
	var one [1]byte
	n := 0

	for {
		if time.Now().After(deadline) {
			return f, ErrNoInit
		}
		got, err := p.port.Read(one[:])
		if err != nil && err != io.EOF {
			return f, fmt.Errorf("dfplayer read: %w", err)
		}
		if got == 0 {
			time.Sleep(p.pollDelay)
			continue
		}

		b := one[0]
		if n == 0 && b != dfStart {
			continue
		}
		f[n] = b
		n++
		if n < dfFrameSz {
			continue
		}

		ck := dfChecksum(f[:])
		if f[9] != dfEnd || f[7] != byte(ck>>8) || f[8] != byte(ck) {
			p.logger.Debug().Hex("frame", f[:]).Msg("dfplayer dropping bad frame")
			n = 0
			continue
		}
		return f, nil
	}
} // func readFrame

// Init resets the module and waits for its init-done report.
func (p *DFPlayer) Init(ctx context.Context) error {
	if err := p.send(dfCmdReset, 0); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(p.initTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := p.readFrame(deadline)
		if err != nil {
			return err
		}
		param := uint16(f[5])<<8 | uint16(f[6])
		switch f[3] {
		case dfRespInitDone:
			p.logger.Info().Uint16("devices", param).Msg("dfplayer online")
			return nil
		case dfRespError:
			return fmt.Errorf("%w: error code %d", ErrNoInit, param)
		default:
			p.logger.Debug().Hex("frame", f[:]).Msg("dfplayer ignoring frame during init")
		}
	}
} // func Init

func (p *DFPlayer) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	} else if volume > dfMaxVolume {
		volume = dfMaxVolume
	}
	return p.send(dfCmdVolume, uint16(volume))
}

func (p *DFPlayer) Play(track int) error {
	return p.send(dfCmdPlay, uint16(track))
}

func (p *DFPlayer) Pause() error {
	return p.send(dfCmdPause, 0)
}

func (p *DFPlayer) Start() error {
	return p.send(dfCmdStart, 0)
}

func (p *DFPlayer) PlayFolder(track int) error {
	return p.send(dfCmdPlayMp3, uint16(track))
}

func (p *DFPlayer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
