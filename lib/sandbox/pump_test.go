package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCombined_Success(t *testing.T) {
	assert.Equal(t, "hello\n", buildCombined(0, "hello\n", ""))
}

func TestBuildCombined_Failure(t *testing.T) {
	got := buildCombined(3, "out\n", "err\n")
	assert.Equal(t, "err\nout\nExit code: 3\n", got)
}

func TestBuildCombined_Failure_NoOutput(t *testing.T) {
	got := buildCombined(1, "", "")
	assert.Equal(t, "Exit code: 1\n", got)
}

func TestBuildCombined_Failure_StderrOnly(t *testing.T) {
	got := buildCombined(2, "", "boom\n")
	assert.Equal(t, "boom\nExit code: 2\n", got)
}
