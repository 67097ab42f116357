//go:build !linux

package gps

import (
	"fmt"
	"os"
)

func openSerial(_ string, _ int) (*os.File, error) {
	return nil, fmt.Errorf("gps: serial NMEA is only supported on linux")
}
