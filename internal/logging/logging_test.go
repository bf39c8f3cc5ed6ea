package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log := NewWithWriter(buf, "checkin-api")
	require.Equal(t, 0, buf.Len())

	log.Info().Str("eventId", "E1").Msg("recorded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "checkin-api", line["service"])
	require.Equal(t, "E1", line["eventId"])
	require.Equal(t, "recorded", line["message"])
	require.Contains(t, line, "time")
}
