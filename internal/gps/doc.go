// Package gps reads own-ship kinematics from a GNSS receiver, either as
// NMEA (RMC, GGA) over a serial port or as JSON reports from gpsd, and
// serves them as the FLARM own-ship.
package gps
