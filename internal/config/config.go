package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"flarm-ng/internal/flarm"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	FLARM   FLARMConfig   `yaml:"flarm"`
	Ownship OwnshipConfig `yaml:"ownship"`
	Radio   RadioConfig   `yaml:"radio"`
	GDL90   GDL90Config   `yaml:"gdl90"`
	Traffic TrafficConfig `yaml:"traffic"`
	Record  RecordConfig  `yaml:"record"`
	Replay  ReplayConfig  `yaml:"replay"`
	Sim     SimConfig     `yaml:"sim"`
	Web     WebConfig     `yaml:"web"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type FLARMConfig struct {
	IgnoreDistanceM float64       `yaml:"ignore_distance_m"`
	QueueDepth      int           `yaml:"queue_depth"`
	Turn            TurnConfig    `yaml:"turn"`
	TxInterval      time.Duration `yaml:"tx_interval"`
	FrequencyHz     uint32        `yaml:"frequency_hz"`
	TxPowerDBm      int           `yaml:"tx_power_dbm"`
}

type TurnConfig struct {
	MaxGroundSpeedMps float64 `yaml:"max_ground_speed_mps"`
	MinTurnRateDps    float64 `yaml:"min_turn_rate_dps"`
}

// OwnshipConfig is the static identity broadcast in our own frames.
type OwnshipConfig struct {
	Address      string `yaml:"address"`
	AddressType  string `yaml:"address_type"`
	AircraftType string `yaml:"aircraft_type"`
	Stealth      bool   `yaml:"stealth"`
	NoTrack      bool   `yaml:"no_track"`

	// Fixed position for a ground station; ignored when Sim or GPS is enabled.
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
	AltM   float64 `yaml:"alt_m"`

	Sim OwnshipSimConfig `yaml:"sim"`
	GPS OwnshipGPSConfig `yaml:"gps"`
}

// OwnshipGPSConfig feeds own-ship kinematics from a GNSS receiver.
type OwnshipGPSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is "nmea" (serial) or "gpsd".
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`
	// Device may be empty to auto-detect /dev/ttyACM* and /dev/ttyUSB*.
	Device    string        `yaml:"device"`
	Baud      int           `yaml:"baud"`
	MaxFixAge time.Duration `yaml:"max_fix_age"`
}

type OwnshipSimConfig struct {
	Enable         bool          `yaml:"enable"`
	CenterLatDeg   float64       `yaml:"center_lat_deg"`
	CenterLonDeg   float64       `yaml:"center_lon_deg"`
	AltM           float64       `yaml:"alt_m"`
	GroundSpeedMps float64       `yaml:"ground_speed_mps"`
	RadiusM        float64       `yaml:"radius_m"`
	Period         time.Duration `yaml:"period"`
}

type RadioConfig struct {
	// Addr is the host:port of an external demodulator emitting
	// "hex freq rssi" lines.
	Addr   string      `yaml:"addr"`
	TxDest string      `yaml:"tx_dest"`
	Demod  DemodConfig `yaml:"demod"`
}

// DemodConfig starts the demodulator as a supervised child process.
type DemodConfig struct {
	Enable  bool     `yaml:"enable"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// SDRSerial selects the RTL-SDR by serial; "auto" probes with rtl_test.
	SDRSerial  string `yaml:"sdr_serial"`
	DeviceFlag string `yaml:"device_flag"`
	Restart    bool   `yaml:"restart"`
}

type GDL90Config struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type TrafficConfig struct {
	MaxTargets int           `yaml:"max_targets"`
	TTL        time.Duration `yaml:"ttl"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type SimConfig struct {
	Traffic TrafficSimConfig `yaml:"traffic"`
}

type TrafficSimConfig struct {
	Enable  bool          `yaml:"enable"`
	Count   int           `yaml:"count"`
	RadiusM float64       `yaml:"radius_m"`
	Period  time.Duration `yaml:"period"`
	// GroundSpeedMps is kept below the turn-state ground speed limit by
	// default so simulated gliders report their turn direction.
	GroundSpeedMps float64 `yaml:"ground_speed_mps"`
	AltM           float64 `yaml:"alt_m"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML config, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.FLARM.IgnoreDistanceM == 0 {
		cfg.FLARM.IgnoreDistanceM = 30000
	}
	if cfg.FLARM.QueueDepth == 0 {
		cfg.FLARM.QueueDepth = 4
	}
	if cfg.FLARM.Turn.MaxGroundSpeedMps == 0 {
		cfg.FLARM.Turn.MaxGroundSpeedMps = flarm.DefaultTurnConfig().MaxGroundSpeedMps
	}
	if cfg.FLARM.Turn.MinTurnRateDps == 0 {
		cfg.FLARM.Turn.MinTurnRateDps = flarm.DefaultTurnConfig().MinTurnRateDps
	}
	if cfg.FLARM.TxInterval <= 0 {
		cfg.FLARM.TxInterval = 1 * time.Second
	}
	if cfg.FLARM.FrequencyHz == 0 {
		cfg.FLARM.FrequencyHz = 868200000
	}
	if cfg.FLARM.TxPowerDBm == 0 {
		cfg.FLARM.TxPowerDBm = 14
	}

	if cfg.Ownship.AddressType == "" {
		cfg.Ownship.AddressType = "flarm"
	}
	if cfg.Ownship.AircraftType == "" {
		cfg.Ownship.AircraftType = "glider"
	}
	// Simulator defaults (safe even if disabled).
	if cfg.Ownship.Sim.AltM == 0 {
		cfg.Ownship.Sim.AltM = 1000
	}
	if cfg.Ownship.Sim.GroundSpeedMps <= 0 {
		cfg.Ownship.Sim.GroundSpeedMps = 25
	}
	if cfg.Ownship.Sim.RadiusM <= 0 {
		cfg.Ownship.Sim.RadiusM = 800
	}
	if cfg.Ownship.Sim.Period <= 0 {
		cfg.Ownship.Sim.Period = 120 * time.Second
	}

	if cfg.Ownship.GPS.Source == "" {
		cfg.Ownship.GPS.Source = "nmea"
	}
	if cfg.Ownship.GPS.GPSDAddr == "" {
		cfg.Ownship.GPS.GPSDAddr = "127.0.0.1:2947"
	}
	if cfg.Ownship.GPS.Baud <= 0 {
		cfg.Ownship.GPS.Baud = 9600
	}
	if cfg.Ownship.GPS.MaxFixAge <= 0 {
		cfg.Ownship.GPS.MaxFixAge = 3 * time.Second
	}

	if cfg.Radio.Demod.DeviceFlag == "" {
		cfg.Radio.Demod.DeviceFlag = "-d"
	}

	if cfg.Traffic.MaxTargets <= 0 {
		cfg.Traffic.MaxTargets = 50
	}
	if cfg.Traffic.TTL <= 0 {
		cfg.Traffic.TTL = 30 * time.Second
	}

	if cfg.Replay.Enable && cfg.Replay.Speed == 0 {
		cfg.Replay.Speed = 1
	}

	// Traffic simulator defaults.
	if cfg.Sim.Traffic.Count <= 0 {
		cfg.Sim.Traffic.Count = 3
	}
	if cfg.Sim.Traffic.RadiusM <= 0 {
		cfg.Sim.Traffic.RadiusM = 3000
	}
	if cfg.Sim.Traffic.Period <= 0 {
		cfg.Sim.Traffic.Period = 90 * time.Second
	}
	if cfg.Sim.Traffic.GroundSpeedMps <= 0 {
		cfg.Sim.Traffic.GroundSpeedMps = 30
	}
	if cfg.Sim.Traffic.AltM == 0 {
		cfg.Sim.Traffic.AltM = 1200
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
}

func (cfg *Config) validate() error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}

	if cfg.FLARM.IgnoreDistanceM < 0 {
		return fmt.Errorf("flarm.ignore_distance_m must be >= 0")
	}
	if cfg.FLARM.QueueDepth < 1 {
		return fmt.Errorf("flarm.queue_depth must be >= 1")
	}
	if cfg.FLARM.Turn.MaxGroundSpeedMps < 0 || cfg.FLARM.Turn.MinTurnRateDps < 0 {
		return fmt.Errorf("flarm.turn thresholds must be >= 0")
	}

	if _, err := cfg.Ownship.ParseAddress(); err != nil {
		return err
	}
	if _, ok := flarm.ParseAddressType(cfg.Ownship.AddressType); !ok {
		return fmt.Errorf("ownship.address_type %q is not one of random, icao, flarm", cfg.Ownship.AddressType)
	}
	if _, ok := flarm.ParseAircraftType(cfg.Ownship.AircraftType); !ok {
		return fmt.Errorf("ownship.aircraft_type %q is not a known aircraft type", cfg.Ownship.AircraftType)
	}

	if cfg.Radio.Demod.Enable && cfg.Radio.Demod.Command == "" {
		return fmt.Errorf("radio.demod.command is required when radio.demod.enable is true")
	}

	if cfg.Ownship.Sim.Enable && cfg.Ownship.GPS.Enable {
		return fmt.Errorf("ownship.sim and ownship.gps cannot both be enabled")
	}
	if cfg.Ownship.GPS.Enable {
		switch cfg.Ownship.GPS.Source {
		case "nmea", "gpsd":
		default:
			return fmt.Errorf("ownship.gps.source %q is not one of nmea, gpsd", cfg.Ownship.GPS.Source)
		}
	}
	if !cfg.Ownship.Sim.Enable && !cfg.Ownship.GPS.Enable && cfg.Ownship.LatDeg == 0 && cfg.Ownship.LonDeg == 0 {
		return fmt.Errorf("ownship.lat_deg and ownship.lon_deg are required unless ownship.sim.enable or ownship.gps.enable is true")
	}

	if cfg.GDL90.Enable && cfg.GDL90.Dest == "" {
		return fmt.Errorf("gdl90.dest is required when gdl90.enable is true")
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}
	if cfg.Record.Enable && cfg.Replay.Enable {
		return fmt.Errorf("record and replay cannot both be enabled")
	}

	if !cfg.Replay.Enable && !cfg.Sim.Traffic.Enable && cfg.Radio.Addr == "" {
		return fmt.Errorf("radio.addr is required unless replay or sim.traffic is enabled")
	}
	if cfg.Sim.Traffic.Enable && !cfg.Ownship.Sim.Enable {
		return fmt.Errorf("sim.traffic requires ownship.sim.enable")
	}
	return nil
}

// ParseAddress returns the 24-bit own-ship address. Empty means 0.
func (o OwnshipConfig) ParseAddress() (uint32, error) {
	s := strings.TrimPrefix(strings.TrimSpace(o.Address), "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || v > 0xFFFFFF {
		return 0, fmt.Errorf("ownship.address must be a 24-bit hex value")
	}
	return uint32(v), nil
}
