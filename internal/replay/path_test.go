package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	at := time.Date(2026, 3, 7, 14, 5, 9, 0, time.FixedZone("CET", 3600))

	got, err := ExpandPath("/var/log/flarm/frames-%Y%m%d-%H%M%S.log", at)
	require.NoError(t, err)
	require.Equal(t, "/var/log/flarm/frames-20260307-130509.log", got)

	got, err = ExpandPath("./frames.log", at)
	require.NoError(t, err)
	require.Equal(t, "./frames.log", got)
}
