package stdlogger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/logger/adapter/stdlogger"
)

func capture(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	previous, previousLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(level)

	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}

	return out
}

func TestLevels(t *testing.T) {
	buf := capture(t, zerolog.InfoLevel)

	l := stdlogger.New("gorm")
	l.Debugf("%s is hidden", "debug")
	l.Infof("%s", "info")
	l.Warningf("%d", 42)
	l.Errorf("%v", "error")
	l.Printf("printf at debug is hidden")

	got := lines(t, buf)
	require.Len(t, got, 3)

	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "info", got[0]["message"])
	assert.Equal(t, "gorm", got[0]["component"])
	assert.Equal(t, "warn", got[1]["level"])
	assert.Equal(t, "42", got[1]["message"])
	assert.Equal(t, "error", got[2]["level"])
}

func TestPrintfLevel(t *testing.T) {
	buf := capture(t, zerolog.InfoLevel)

	stdlogger.New("", zerolog.WarnLevel).Printf("slow query %dms", 250)

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "slow query 250ms", got[0]["message"])
	assert.NotContains(t, got[0], "component")
}
