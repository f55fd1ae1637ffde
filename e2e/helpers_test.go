//go:build e2e

package e2e

import (
	"io"
	"os"
	"testing"

	"github.com/fgeck/ilohelper/internal/config"
	"github.com/fgeck/ilohelper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// getConfig builds the configuration from ILOHELPER_* variables and skips
// the test when no controller is configured.
func getConfig(t *testing.T) *models.Config {
	t.Helper()

	if os.Getenv("ILOHELPER_CONTROLLER_ADDRESS") == "" {
		t.Skip("ILOHELPER_CONTROLLER_ADDRESS not set")
	}

	cfg, err := config.NewParser().LoadFile(os.Getenv("TEST_ILOHELPER_CONFIG"))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	return cfg
}
