package rules

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsignal/vsm/internal/signal"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func boolValue(b bool) signal.Value {
	return signal.Bool(b)
}
