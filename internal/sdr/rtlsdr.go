// Package sdr picks the RTL-SDR dongle for the external FLARM demodulator.
// flarm-ng never opens SDR hardware itself; the selection only rewrites the
// demodulator command line.
package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoDevices is returned when rtl_test lists no dongles.
var ErrNoDevices = errors.New("sdr: no RTL-SDR devices found")

const probeTimeout = 3 * time.Second

// RTLSDRDevice is one dongle as listed by rtl_test.
type RTLSDRDevice struct {
	Index  int
	Vendor string
	Model  string
	Serial string
}

// flarmSerialHints mark dongles whose EEPROM serial was set up for 868 MHz.
var flarmSerialHints = []string{"868", "flarm"}

// IsAutoTag reports whether a configured serial asks for auto-selection.
func IsAutoTag(tag string) bool {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "auto":
		return true
	}
	return false
}

// DetectRTLSDRDevices runs rtl_test and parses its device listing.
func DetectRTLSDRDevices(ctx context.Context) ([]RTLSDRDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	// rtl_test -t exits non-zero after the tuner check even when devices
	// were listed, so only an empty output is fatal.
	out, err := exec.CommandContext(ctx, "rtl_test", "-t").CombinedOutput()
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("sdr: rtl_test: %w", err)
	}
	devs := ParseRTLTestOutput(string(out))
	if len(devs) == 0 {
		return nil, ErrNoDevices
	}
	return devs, nil
}

// "  0:  Realtek, RTL2838UHIDIR, SN: 00000001"
var rtlTestLine = regexp.MustCompile(`^\s*(\d+):\s+([^,]*),\s*([^,]*),\s*SN:\s*(\S+)\s*$`)

// ParseRTLTestOutput extracts the device list from rtl_test output, ordered
// by index. It returns nil when no devices are listed.
func ParseRTLTestOutput(out string) []RTLSDRDevice {
	var devs []RTLSDRDevice
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := rtlTestLine.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || slices.ContainsFunc(devs, func(d RTLSDRDevice) bool { return d.Index == idx }) {
			continue
		}
		devs = append(devs, RTLSDRDevice{
			Index:  idx,
			Vendor: strings.TrimSpace(m[2]),
			Model:  strings.TrimSpace(m[3]),
			Serial: m[4],
		})
	}
	slices.SortFunc(devs, func(a, b RTLSDRDevice) int { return a.Index - b.Index })
	return devs
}

// SelectFLARMDevice picks the dongle for the 868 MHz demodulator. An
// explicit serial must match exactly. Otherwise a serial carrying a FLARM
// hint wins, then the lowest index.
func SelectFLARMDevice(devs []RTLSDRDevice, serial string) (RTLSDRDevice, bool) {
	match := func(d RTLSDRDevice) bool { return d.Serial == strings.TrimSpace(serial) }
	if IsAutoTag(serial) {
		match = func(d RTLSDRDevice) bool {
			s := strings.ToLower(d.Serial)
			return slices.ContainsFunc(flarmSerialHints, func(h string) bool { return strings.Contains(s, h) })
		}
	}
	if i := slices.IndexFunc(devs, match); i >= 0 {
		return devs[i], true
	}
	if IsAutoTag(serial) && len(devs) > 0 {
		return devs[0], true
	}
	return RTLSDRDevice{}, false
}

// UpsertFlagValue returns a copy of args with flag set to value, in either
// "flag value" or "flag=value" form, whichever args already uses.
func UpsertFlagValue(args []string, flag, value string) []string {
	out := slices.Clone(args)
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return out
	}
	for i, a := range out {
		switch {
		case strings.HasPrefix(a, flag+"="):
			out[i] = flag + "=" + value
			return out
		case a == flag && i+1 < len(out):
			out[i+1] = value
			return out
		case a == flag:
			return append(out, value)
		}
	}
	return append(out, flag, value)
}
