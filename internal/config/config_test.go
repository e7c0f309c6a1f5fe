package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnv_OverridesDefaults(t *testing.T) {
	t.Setenv("CIRIS_OCCURRENCE_ID", "occ-42")
	t.Setenv("CIRIS_PROCESSOR_MAX_CONCURRENT", "8")
	t.Setenv("CIRIS_PERSISTENCE_DRIVER", "postgres")
	t.Setenv("CIRIS_PERSISTENCE_POSTGRES_DSN", "postgres://localhost/ciris")

	c := Default()
	require.NoError(t, c.LoadFromEnv())

	assert.Equal(t, "occ-42", c.OccurrenceID)
	assert.Equal(t, 8, c.Processor.MaxConcurrent)
	assert.Equal(t, "postgres", c.Persistence.Driver)
	require.NoError(t, c.Validate())
}

func TestLoadFromEnv_InvalidDurationIsRejected(t *testing.T) {
	t.Setenv("CIRIS_PROCESSOR_POLL_INTERVAL", "not-a-duration")
	c := Default()
	err := c.LoadFromEnv()
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.KindValidation))
}

func TestValidate_RejectsUnknownPersistenceDriver(t *testing.T) {
	c := Default()
	c.Persistence.Driver = "mongo"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsTelemetryEnabledWithoutEndpoint(t *testing.T) {
	c := Default()
	c.Telemetry.Enabled = true
	assert.Error(t, c.Validate())
}

func TestLoadFromFile_YAMLOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ciris-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("occurrence_id: from-file\nprocessor:\n  max_concurrent: 6\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := Default()
	require.NoError(t, c.LoadFromFile(f.Name()))
	assert.Equal(t, "from-file", c.OccurrenceID)
	assert.Equal(t, 6, c.Processor.MaxConcurrent)
}

func TestLoad_PrecedenceFileThenEnvThenOptions(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ciris-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("occurrence_id: from-file\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("CIRIS_OCCURRENCE_ID", "from-env")

	c, err := Load(f.Name(), WithOccurrenceID("from-option"))
	require.NoError(t, err)
	assert.Equal(t, "from-option", c.OccurrenceID)
}
