package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"flarm-ng/internal/flarm"
)

// RawFrame is a frame handed over by the radio layer.
type RawFrame struct {
	Data        []byte
	FrequencyHz uint32
	At          time.Time
	RSSI        float64
}

// DataSource tags which protocol a transmit request is meant for.
type DataSource string

const (
	SourceFLARM DataSource = "flarm"
	SourceOGN   DataSource = "ogn"
	SourceADSL  DataSource = "adsl"
)

// TransmitRequest asks for one own-ship frame on the given radio parameters.
type TransmitRequest struct {
	Source      DataSource
	FrequencyHz uint32
	PowerDBm    int
}

// TxFrame is an encoded frame ready for the radio.
type TxFrame struct {
	Data        []byte
	FrequencyHz uint32
	PowerDBm    int
	At          time.Time
}

// OwnshipSource provides the current own-ship snapshot. ok is false while no
// valid position is known.
type OwnshipSource interface {
	Ownship() (o flarm.Ownship, ok bool)
}

// PositionSink receives decoded positions.
type PositionSink interface {
	PublishPosition(p flarm.Position)
}

// PositionSinks fans a position out to every sink in order.
type PositionSinks []PositionSink

func (ps PositionSinks) PublishPosition(p flarm.Position) {
	for _, s := range ps {
		if s != nil {
			s.PublishPosition(p)
		}
	}
}

// FrameSink receives frames to transmit.
type FrameSink interface {
	PublishFrame(f TxFrame)
}

type Config struct {
	QueueDepth      int
	IgnoreDistanceM float64
	Turn            flarm.TurnConfig
}

type Service struct {
	cfg     Config
	log     logrus.FieldLogger
	ownship OwnshipSource
	pos     PositionSink
	frames  FrameSink
	now     func() time.Time

	dec flarm.Decoder
	enc flarm.Encoder

	queue chan RawFrame
	stats Stats
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger; the default discards.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// New validates the wire layout and allocates the inbound queue. Both
// failures are configuration errors and should abort startup.
func New(cfg Config, ownship OwnshipSource, pos PositionSink, frames FrameSink, opts ...Option) (*Service, error) {
	if err := checkLayout(); err != nil {
		return nil, err
	}
	if cfg.QueueDepth < 1 {
		return nil, fmt.Errorf("dispatch: queue depth must be >= 1, got %d", cfg.QueueDepth)
	}
	if ownship == nil {
		return nil, errors.New("dispatch: ownship source is nil")
	}

	discard := logrus.New()
	discard.SetOutput(nopWriter{})

	s := &Service{
		cfg:     cfg,
		log:     discard,
		ownship: ownship,
		pos:     pos,
		frames:  frames,
		now:     time.Now,
		dec:     flarm.Decoder{IgnoreDistanceM: cfg.IgnoreDistanceM},
		enc:     flarm.Encoder{Turn: cfg.Turn},
		queue:   make(chan RawFrame, cfg.QueueDepth),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func checkLayout() error {
	b, err := flarm.Packet{}.MarshalBinary()
	if err != nil {
		return err
	}
	if len(b) != flarm.PacketSize || flarm.FrameSize != flarm.PacketSize+2 {
		return fmt.Errorf("dispatch: wire layout is %d bytes, want %d", len(b), flarm.PacketSize)
	}
	return nil
}

// Stats exposes the live counters.
func (s *Service) Stats() *Stats { return &s.stats }

// Enqueue hands a received frame to the receive loop without blocking.
// It reports false when the queue is full; the drop is counted.
func (s *Service) Enqueue(f RawFrame) bool {
	select {
	case s.queue <- f:
		return true
	default:
		s.stats.QueueFull.Add(1)
		return false
	}
}

// Run drains the inbound queue until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithField("depth", cap(s.queue)).Info("flarm receive loop started")
	defer s.log.Info("flarm receive loop stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.queue:
			s.HandleFrame(f)
		}
	}
}

// HandleFrame decodes one frame and publishes the result. Failures are
// counted and the frame is dropped.
func (s *Service) HandleFrame(f RawFrame) {
	if f.At.IsZero() {
		f.At = s.now()
	}
	s.stats.MarkFrequency(f.FrequencyHz, DeciSecondOfMinute(f.At))

	own, ok := s.ownship.Ownship()
	if !ok {
		s.stats.DecodeErr.Add(1)
		s.log.Debug("frame dropped: no own-ship position")
		return
	}

	pos, notes, err := s.dec.Decode(f.Data, own, flarm.Reception{At: f.At, RSSI: f.RSSI, FrequencyHz: f.FrequencyHz})
	if notes.BadParity {
		s.stats.ParityErr.Add(1)
	}
	if notes.UnknownAddrType {
		s.stats.AddrTypeErr.Add(1)
	}
	if err != nil {
		s.countDecodeError(err)
		s.log.WithFields(logrus.Fields{
			"freq": f.FrequencyHz,
			"rssi": f.RSSI,
		}).WithError(err).Debug("frame dropped")
		return
	}

	switch pos.AddressType {
	case flarm.AddressFLARM:
		s.stats.AddrFLARM.Add(1)
	case flarm.AddressICAO:
		s.stats.AddrICAO.Add(1)
	default:
		s.stats.AddrRandom.Add(1)
	}

	if s.pos != nil {
		s.pos.PublishPosition(pos)
	}
	s.stats.Received.Add(1)
}

func (s *Service) countDecodeError(err error) {
	switch {
	case errors.Is(err, flarm.ErrChecksum):
		s.stats.CRCErr.Add(1)
	case errors.Is(err, flarm.ErrFrameLength):
		s.stats.LengthErr.Add(1)
	case errors.Is(err, flarm.ErrZeroFlag):
		s.stats.Zero0x01Err.Add(1)
	case errors.Is(err, flarm.ErrZeroField):
		s.stats.Zero0Err.Add(1)
	case errors.Is(err, flarm.ErrOutOfDistance):
		s.stats.OutOfDistance.Add(1)
	default:
		s.stats.DecodeErr.Add(1)
	}
}

// Transmit encodes the current own-ship state for req and publishes it.
// Requests for other protocols are ignored. It reports whether a frame was
// published.
func (s *Service) Transmit(req TransmitRequest) (bool, error) {
	if req.Source != SourceFLARM {
		s.stats.TxSkipped.Add(1)
		return false, nil
	}
	own, ok := s.ownship.Ownship()
	if !ok {
		s.stats.TxNoOwnship.Add(1)
		return false, nil
	}

	now := s.now()
	data, err := s.enc.Encode(own, now)
	if err != nil {
		return false, fmt.Errorf("encode ownship: %w", err)
	}
	if s.frames != nil {
		s.frames.PublishFrame(TxFrame{
			Data:        data,
			FrequencyHz: req.FrequencyHz,
			PowerDBm:    req.PowerDBm,
			At:          now,
		})
	}
	s.stats.Transmitted.Add(1)
	return true, nil
}
