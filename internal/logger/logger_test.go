package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "info")

	Info("test message", "chat_id", 42, "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "test message")
	assert.Contains(t, out, `"chat_id":42`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "warn")

	Debug("hidden debug")
	Info("hidden info")
	Warn("visible warn")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
}

func TestOddFields(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "debug")

	Error("odd", "dangling")
	assert.Contains(t, buf.String(), `"extra":"dangling"`)
}

func TestGetLevelFromString(t *testing.T) {
	assert.Equal(t, DEBUG, getLevelFromString("debug"))
	assert.Equal(t, ERROR, getLevelFromString("ERROR"))
	assert.Equal(t, INFO, getLevelFromString("nonsense"))
}
