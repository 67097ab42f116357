package udp

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
	"flarm-ng/internal/gdl90"
)

// Sender is the subset of Broadcaster used by the sinks.
type Sender interface {
	Send(payload []byte) error
}

// GDL90Sink turns decoded positions into GDL90 traffic reports.
type GDL90Sink struct {
	Out Sender
	Log logrus.FieldLogger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func (s *GDL90Sink) PublishPosition(p flarm.Position) {
	if err := s.Out.Send(gdl90.TrafficReportFrame(gdl90.TrafficFromPosition(p))); err != nil {
		// Only the first failure is logged; the counter tracks the rest.
		if s.failed.Add(1) == 1 && s.Log != nil {
			s.Log.WithError(err).Warn("gdl90 traffic send failed")
		}
		return
	}
	s.sent.Add(1)
}

// Counts returns sent and failed report totals.
func (s *GDL90Sink) Counts() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// FormatTxLine renders a transmit frame in the line format the demodulator
// bridge reads: "<hex> <freq_hz> <power_dbm>\n".
func FormatTxLine(f dispatch.TxFrame) []byte {
	return []byte(fmt.Sprintf("%s %d %d\n", hex.EncodeToString(f.Data), f.FrequencyHz, f.PowerDBm))
}

// FrameSender forwards frames due for transmission to the radio bridge.
type FrameSender struct {
	Out Sender
	Log logrus.FieldLogger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func (s *FrameSender) PublishFrame(f dispatch.TxFrame) {
	if err := s.Out.Send(FormatTxLine(f)); err != nil {
		if s.failed.Add(1) == 1 && s.Log != nil {
			s.Log.WithError(err).Warn("tx frame send failed")
		}
		return
	}
	s.sent.Add(1)
}

func (s *FrameSender) Counts() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}
