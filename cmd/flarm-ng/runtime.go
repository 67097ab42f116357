package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"flarm-ng/internal/config"
	"flarm-ng/internal/decoder"
	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
	"flarm-ng/internal/gdl90"
	"flarm-ng/internal/gps"
	"flarm-ng/internal/replay"
	"flarm-ng/internal/sdr"
	"flarm-ng/internal/sim"
	"flarm-ng/internal/traffic"
	"flarm-ng/internal/udp"
	"flarm-ng/internal/web"
)

const (
	modeLive   = "live"
	modeReplay = "replay"
	modeSim    = "sim"
)

type runtime struct {
	cfg  config.Config
	log  logrus.FieldLogger
	now  func() time.Time
	mode string

	status *web.Status
	logs   *web.LogBuffer

	own   dispatch.OwnshipSource
	gps   *gps.Service
	svc   *dispatch.Service
	store *traffic.Store

	gdl90Out  *udp.Broadcaster
	gdl90Sink *udp.GDL90Sink
	txOut     *udp.Broadcaster

	recMu    sync.Mutex
	recorder *replay.Writer

	client *decoder.FrameClient
	demod  *decoder.Supervisor
}

// txStatusSink marks the web status for every transmitted frame and
// forwards it to the radio bridge when one is configured.
type txStatusSink struct {
	status *web.Status
	next   dispatch.FrameSink
}

func (s txStatusSink) PublishFrame(f dispatch.TxFrame) {
	s.status.MarkTx(f.At)
	if s.next != nil {
		s.next.PublishFrame(f)
	}
}

func ownshipIdentity(o config.OwnshipConfig) (sim.Identity, error) {
	addr, err := o.ParseAddress()
	if err != nil {
		return sim.Identity{}, err
	}
	at, ok := flarm.ParseAddressType(o.AddressType)
	if !ok {
		return sim.Identity{}, fmt.Errorf("ownship.address_type %q is not one of random, icao, flarm", o.AddressType)
	}
	ac, ok := flarm.ParseAircraftType(o.AircraftType)
	if !ok {
		return sim.Identity{}, fmt.Errorf("ownship.aircraft_type %q is not a known aircraft type", o.AircraftType)
	}
	return sim.Identity{
		Address:      addr,
		AddressType:  at,
		AircraftType: ac,
		Stealth:      o.Stealth,
		NoTrack:      o.NoTrack,
	}, nil
}

// newOwnshipSource picks the simulator, a GNSS receiver or the fixed
// ground-station position. The returned service is non-nil only for GNSS
// and must be started by the caller.
func newOwnshipSource(cfg config.OwnshipConfig, now func() time.Time, log logrus.FieldLogger) (dispatch.OwnshipSource, *gps.Service, error) {
	id, err := ownshipIdentity(cfg)
	if err != nil {
		return nil, nil, err
	}
	ident := flarm.Ownship{
		Address:      id.Address,
		AddressType:  id.AddressType,
		AircraftType: id.AircraftType,
		Stealth:      id.Stealth,
		NoTrack:      id.NoTrack,
	}
	switch {
	case cfg.Sim.Enable:
		s := sim.OwnshipSim{
			CenterLatDeg: cfg.Sim.CenterLatDeg,
			CenterLonDeg: cfg.Sim.CenterLonDeg,
			AltM:         cfg.Sim.AltM,
			RadiusM:      cfg.Sim.RadiusM,
			Period:       cfg.Sim.Period,
			Identity:     id,
		}.WithGroundSpeed(cfg.Sim.GroundSpeedMps)
		return sim.SimSource{Sim: s, Now: now}, nil, nil
	case cfg.GPS.Enable:
		svc := gps.New(gps.Config{
			Enable:    true,
			Source:    cfg.GPS.Source,
			GPSDAddr:  cfg.GPS.GPSDAddr,
			Device:    cfg.GPS.Device,
			Baud:      cfg.GPS.Baud,
			MaxFixAge: cfg.GPS.MaxFixAge,
		}, log)
		return gps.Source{GPS: svc, Identity: ident}, svc, nil
	}
	fixed := ident
	fixed.LatDeg = cfg.LatDeg
	fixed.LonDeg = cfg.LonDeg
	fixed.AltM = cfg.AltM
	return sim.NewFixedSource(fixed), nil, nil
}

func runtimeMode(cfg config.Config) string {
	switch {
	case cfg.Replay.Enable:
		return modeReplay
	case cfg.Radio.Addr == "" && cfg.Sim.Traffic.Enable:
		return modeSim
	default:
		return modeLive
	}
}

func newRuntime(cfg config.Config, log logrus.FieldLogger, logs *web.LogBuffer) (*runtime, error) {
	return newRuntimeWithClock(cfg, log, logs, time.Now)
}

func newRuntimeWithClock(cfg config.Config, log logrus.FieldLogger, logs *web.LogBuffer, now func() time.Time) (*runtime, error) {
	r := &runtime{
		cfg:    cfg,
		log:    log,
		now:    now,
		mode:   runtimeMode(cfg),
		status: web.NewStatus(),
		logs:   logs,
		store:  traffic.NewStore(traffic.StoreConfig{MaxTargets: cfg.Traffic.MaxTargets, TTL: cfg.Traffic.TTL}),
	}

	own, gpsSvc, err := newOwnshipSource(cfg.Ownship, now, log)
	if err != nil {
		return nil, err
	}
	r.own = own
	r.gps = gpsSvc

	sinks := dispatch.PositionSinks{r.store}
	if cfg.GDL90.Enable {
		b, err := udp.NewBroadcaster(cfg.GDL90.Dest)
		if err != nil {
			return nil, fmt.Errorf("gdl90 broadcaster init failed: %w", err)
		}
		r.gdl90Out = b
		log.WithField("dest", b.Dest()).Info("gdl90 output enabled")
		r.gdl90Sink = &udp.GDL90Sink{Out: b, Log: log.WithField("component", "gdl90")}
		sinks = append(sinks, r.gdl90Sink)
	}

	frames := txStatusSink{status: r.status}
	if cfg.Radio.TxDest != "" {
		b, err := udp.NewBroadcaster(cfg.Radio.TxDest)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("tx broadcaster init failed: %w", err)
		}
		r.txOut = b
		frames.next = &udp.FrameSender{Out: b, Log: log.WithField("component", "tx")}
	}

	svc, err := dispatch.New(dispatch.Config{
		QueueDepth:      cfg.FLARM.QueueDepth,
		IgnoreDistanceM: cfg.FLARM.IgnoreDistanceM,
		Turn: flarm.TurnConfig{
			MaxGroundSpeedMps: cfg.FLARM.Turn.MaxGroundSpeedMps,
			MinTurnRateDps:    cfg.FLARM.Turn.MinTurnRateDps,
		},
	}, own, sinks, frames,
		dispatch.WithClock(now),
		dispatch.WithLogger(log.WithField("component", "dispatch")),
	)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.svc = svc

	if cfg.Record.Enable {
		path, err := replay.ExpandPath(cfg.Record.Path, now())
		if err != nil {
			r.Close()
			return nil, err
		}
		w, err := replay.CreateWriter(path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("record init failed: %w", err)
		}
		r.recorder = w
		log.WithField("path", path).Info("recording received frames")
	}

	gdl90Dest := ""
	if cfg.GDL90.Enable {
		gdl90Dest = cfg.GDL90.Dest
	}
	r.status.SetStatic(r.mode, gdl90Dest, cfg.FLARM.TxInterval.String())
	r.status.SetComponent("flarm", func() any { return r.svc.Stats().Diagnostics() })
	r.status.SetComponent("traffic", func() any { return map[string]int{"targets": r.store.Len()} })
	if r.gps != nil {
		r.status.SetComponent("gps", func() any { return r.gps.Snapshot() })
	}
	if r.gdl90Sink != nil {
		r.status.SetComponent("gdl90", func() any {
			sent, failed := r.gdl90Sink.Counts()
			return map[string]uint64{"sent": sent, "failed": failed}
		})
	}
	return r, nil
}

// enqueue records f when recording and hands it to the dispatch queue.
func (r *runtime) enqueue(f dispatch.RawFrame) bool {
	if r.recorder != nil {
		r.recMu.Lock()
		err := r.recorder.WriteFrame(r.now(), f)
		r.recMu.Unlock()
		if err != nil {
			r.log.WithError(err).Warn("record write failed")
		}
	}
	if !r.svc.Enqueue(f) {
		r.log.WithField("freq", f.FrequencyHz).Debug("receive queue full, frame dropped")
		return false
	}
	return true
}

// demodArgs resolves the SDR device for the demodulator command line. On
// detection failure the configured args are used unchanged.
func (r *runtime) demodArgs(ctx context.Context) []string {
	d := r.cfg.Radio.Demod
	args := append([]string(nil), d.Args...)
	if d.SDRSerial == "" {
		return args
	}
	devs, err := sdr.DetectRTLSDRDevices(ctx)
	if err != nil {
		r.log.WithError(err).Warn("sdr detection failed, using configured args")
		return args
	}
	dev, ok := sdr.SelectFLARMDevice(devs, d.SDRSerial)
	if !ok {
		r.log.WithField("serial", d.SDRSerial).Warn("no matching sdr, using configured args")
		return args
	}
	r.log.WithFields(logrus.Fields{"index": dev.Index, "serial": dev.Serial}).Info("sdr selected")
	return sdr.UpsertFlagValue(args, d.DeviceFlag, strconv.Itoa(dev.Index))
}

func (r *runtime) startRadio(ctx context.Context) error {
	if r.cfg.Radio.Demod.Enable {
		sup, err := decoder.NewSupervisor(decoder.SupervisorConfig{
			Name:    "demod",
			Command: r.cfg.Radio.Demod.Command,
			Args:    r.demodArgs(ctx),
			Restart: r.cfg.Radio.Demod.Restart,
			Log:     r.log.WithField("component", "demod"),
		})
		if err != nil {
			return err
		}
		if err := sup.Start(ctx); err != nil {
			return err
		}
		r.demod = sup
		r.status.SetComponent("demod", func() any { return sup.Snapshot() })
	}

	if r.cfg.Radio.Addr == "" || r.mode == modeReplay {
		return nil
	}
	client, err := decoder.NewFrameClient(decoder.FrameClientConfig{
		Name:               "radio",
		Addr:               r.cfg.Radio.Addr,
		DefaultFrequencyHz: r.cfg.FLARM.FrequencyHz,
		Log:                r.log.WithField("component", "radio"),
	})
	if err != nil {
		return err
	}
	if err := client.Start(ctx, func(f dispatch.RawFrame) { r.enqueue(f) }); err != nil {
		return err
	}
	r.client = client
	r.status.SetComponent("radio", func() any { return client.Snapshot() })
	return nil
}

// transmit asks the dispatch service for one own-ship frame.
func (r *runtime) transmit() {
	sent, err := r.svc.Transmit(dispatch.TransmitRequest{
		Source:      dispatch.SourceFLARM,
		FrequencyHz: r.cfg.FLARM.FrequencyHz,
		PowerDBm:    r.cfg.FLARM.TxPowerDBm,
	})
	if err != nil {
		r.log.WithError(err).Warn("transmit failed")
		return
	}
	if !sent {
		r.log.Debug("transmit skipped")
	}
}

// heartbeat refreshes the own-ship status and emits the once-per-second
// GDL90 messages.
func (r *runtime) heartbeat(now time.Time) {
	o, ok := r.own.Ownship()
	r.status.SetOwnship(now, o, ok)
	if r.gdl90Out == nil {
		return
	}
	msgs := [][]byte{
		gdl90.HeartbeatFrame(now, ok, false),
		gdl90.ForeFlightIDFrame("", ""),
	}
	if ok {
		rep := gdl90.OwnshipFromFlarm(o, "")
		msgs = append(msgs, gdl90.OwnshipReportFrame(rep), gdl90.OwnshipGeoAltFrame(rep.AltFeet))
	}
	for _, m := range msgs {
		if err := r.gdl90Out.Send(m); err != nil {
			r.log.WithError(err).Debug("gdl90 heartbeat send failed")
			return
		}
	}
}

func (r *runtime) Run(ctx context.Context) error {
	if r.gps != nil {
		// Without a fix the own-ship stays unknown and nothing is sent.
		if err := r.gps.Start(ctx); err != nil {
			r.log.WithError(err).Warn("gps start failed")
		}
	}
	if err := r.startRadio(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.svc.Run(ctx) })

	if r.cfg.Replay.Enable {
		g.Go(func() error {
			err := replay.PlayFile(ctx, r.cfg.Replay.Path, r.cfg.Replay.Speed, r.cfg.Replay.Loop, r.enqueue)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			r.log.WithField("path", r.cfg.Replay.Path).Info("replay finished")
			return nil
		})
	}

	if r.cfg.Sim.Traffic.Enable {
		loop := r.trafficLoop()
		g.Go(func() error { return loop.Run(ctx, r.enqueue) })
	}

	if r.cfg.Web.Listen != "" {
		g.Go(func() error {
			err := web.Serve(ctx, r.cfg.Web.Listen, web.Deps{
				Status:  r.status,
				Stats:   r.svc.Stats(),
				Traffic: r.store,
				Logs:    r.logs,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		tx := time.NewTicker(r.cfg.FLARM.TxInterval)
		defer tx.Stop()
		hb := time.NewTicker(time.Second)
		defer hb.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tx.C:
				r.transmit()
			case <-hb.C:
				r.heartbeat(r.now())
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *runtime) trafficLoop() sim.TrafficLoop {
	// Targets orbit the own-ship pattern center; config requires the own-ship
	// simulator whenever traffic is simulated.
	center := r.cfg.Ownship.Sim
	return sim.TrafficLoop{
		Sim: sim.TrafficSim{
			CenterLatDeg:   center.CenterLatDeg,
			CenterLonDeg:   center.CenterLonDeg,
			BaseAltM:       r.cfg.Sim.Traffic.AltM,
			GroundSpeedMps: r.cfg.Sim.Traffic.GroundSpeedMps,
			RadiusM:        r.cfg.Sim.Traffic.RadiusM,
			Period:         r.cfg.Sim.Traffic.Period,
		},
		Count:       r.cfg.Sim.Traffic.Count,
		Interval:    time.Second,
		FrequencyHz: r.cfg.FLARM.FrequencyHz,
		Encoder: flarm.Encoder{Turn: flarm.TurnConfig{
			MaxGroundSpeedMps: r.cfg.FLARM.Turn.MaxGroundSpeedMps,
			MinTurnRateDps:    r.cfg.FLARM.Turn.MinTurnRateDps,
		}},
		Now: r.now,
	}
}

func (r *runtime) Close() {
	if r.gps != nil {
		r.gps.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
	if r.demod != nil {
		r.demod.Close()
	}
	if r.recorder != nil {
		r.recMu.Lock()
		if err := r.recorder.Close(); err != nil {
			r.log.WithError(err).Warn("record close failed")
		}
		r.recMu.Unlock()
	}
	if r.gdl90Out != nil {
		_ = r.gdl90Out.Close()
	}
	if r.txOut != nil {
		_ = r.txOut.Close()
	}
}
