package sampler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// A02YYUW UART frame: 0xFF | high | low | sum, where sum = (0xFF+high+low) & 0xFF.
const (
	frameHeader = 0xFF
	frameSize   = 4
)

var ErrBadFrame = errors.New("malformed sensor frame")

// ParseFrame validates one frame and returns the distance in millimetres.
func ParseFrame(b []byte) (uint16, error) {
	if len(b) != frameSize || b[0] != frameHeader {
		return 0, ErrBadFrame
	}
	if b[3] != byte(int(b[0])+int(b[1])+int(b[2])) {
		return 0, ErrBadFrame
	}
	return uint16(b[1])<<8 | uint16(b[2]), nil
}

// FrameReader scans a byte stream for sensor frames, resynchronising on the
// header byte after garbage.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps a serial stream.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next blocks until a frame arrives. A frame with a bad checksum yields
// ErrBadFrame; the stream stays usable.
func (f *FrameReader) Next() (float64, error) {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != frameHeader {
			continue
		}
		frame := make([]byte, frameSize)
		frame[0] = b
		if _, err := io.ReadFull(f.r, frame[1:]); err != nil {
			return 0, err
		}
		mm, err := ParseFrame(frame)
		if err != nil {
			return 0, err
		}
		return float64(mm) / 10, nil
	}
}

type frameResult struct {
	cm     float64
	err    error
	window uint64
	final  bool
}

// UARTSource adapts a blocking FrameReader to Source. A background goroutine
// drains the stream continuously so the serial buffer never holds old frames;
// frames read outside a window are discarded.
type UARTSource struct {
	results   chan frameResult
	done      chan struct{}
	closeOnce sync.Once
	closer    io.Closer

	window    atomic.Uint64
	seq       atomic.Uint64
	discarded atomic.Uint64
}

// NewUARTSource starts reading frames from r. If r is an io.Closer, Close
// closes it to unblock the reader.
func NewUARTSource(r io.Reader) *UARTSource {
	s := &UARTSource{results: make(chan frameResult, 16), done: make(chan struct{})}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.read(NewFrameReader(r))
	return s
}

func (s *UARTSource) read(fr *FrameReader) {
	defer close(s.results)
	for {
		cm, err := fr.Next()
		final := err != nil && !errors.Is(err, ErrBadFrame)
		w := s.window.Load()
		if w == 0 && !final {
			s.discarded.Add(1)
			continue
		}
		res := frameResult{cm: cm, err: err, window: w, final: final}
		if final {
			select {
			case s.results <- res:
			case <-s.done:
			}
			return
		}
		// Drop rather than block so the serial buffer never backs up.
		select {
		case s.results <- res:
		case <-s.done:
			return
		default:
			s.discarded.Add(1)
		}
	}
}

// BeginWindow starts accepting frames. Frames still buffered from an earlier
// window are dropped.
func (s *UARTSource) BeginWindow() {
	s.window.Store(s.seq.Add(1))
}

// EndWindow stops accepting frames until the next BeginWindow.
func (s *UARTSource) EndWindow() {
	s.window.Store(0)
}

// Discarded returns how many frames were read outside a window.
func (s *UARTSource) Discarded() uint64 { return s.discarded.Load() }

// ReadCM returns the next frame read inside the current window, or ctx's error.
func (s *UARTSource) ReadCM(ctx context.Context) (float64, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case res, ok := <-s.results:
			if !ok {
				return 0, io.EOF
			}
			if !res.final && res.window != s.window.Load() {
				s.discarded.Add(1)
				continue
			}
			return res.cm, res.err
		}
	}
}

// Close stops the reader goroutine and closes the underlying stream.
func (s *UARTSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
