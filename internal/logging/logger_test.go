package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "nid-ocr").With("request_id", "r-1")

	log.Warn("Request rejected", "code", "RATE_LIMITED")

	out := buf.String()
	assert.Contains(t, out, "[nid-ocr] ")
	assert.Contains(t, out, "[WARN] Request rejected request_id=r-1 code=RATE_LIMITED")
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerTo(&buf, "p")
	_ = parent.With("child", true)

	parent.Info("hello")
	assert.NotContains(t, buf.String(), "child=")
}

func TestOddKeyValuesDropTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "p").Error("failed", "error", "boom", "dangling")

	assert.Contains(t, buf.String(), "error=boom")
	assert.NotContains(t, buf.String(), "dangling")
}
