package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybank/idalloc"
	"github.com/mybank/idalloc/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate_Hex(t *testing.T) {
	out, err := run(t, "generate", "--count", "5", "--format", "hex", "--worker", "3", "--datacenter", "1")
	require.NoError(t, err)

	lines := strings.Fields(out)
	require.Len(t, lines, 5)

	var prev idalloc.ID
	for _, line := range lines {
		id, err := idalloc.ParseHex(line)
		require.NoError(t, err)
		p := id.Components()
		assert.Equal(t, int64(3), p.WorkerID)
		assert.Equal(t, int64(1), p.DatacenterID)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerate_JSON(t *testing.T) {
	out, err := run(t, "gen", "--json", "--count", "2", "--worker", "7", "--datacenter", "2")
	require.NoError(t, err)

	var got struct {
		Count        int   `json:"count"`
		WorkerID     int64 `json:"worker_id"`
		DatacenterID int64 `json:"datacenter_id"`
		IDs          []struct {
			ID    idalloc.ID    `json:"id"`
			Hex   string        `json:"hex"`
			Parts idalloc.Parts `json:"parts"`
		} `json:"ids"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, int64(7), got.WorkerID)
	assert.Equal(t, int64(2), got.DatacenterID)
	require.Len(t, got.IDs, 2)
	for _, info := range got.IDs {
		assert.Equal(t, info.ID.Hex(), info.Hex)
		assert.Equal(t, int64(7), info.Parts.WorkerID)
		assert.Equal(t, int64(2), info.Parts.DatacenterID)
	}
}

func TestGenerate_InvalidIdentity(t *testing.T) {
	_, err := run(t, "generate", "--worker", "32")
	require.Error(t, err)
	assert.True(t, idalloc.IsIdentityError(err))

	_, err = run(t, "generate", "--count", "0")
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	id, err := idalloc.Compose(idalloc.LayoutDefault, idalloc.Parts{
		Timestamp:    1000,
		DatacenterID: 3,
		WorkerID:     5,
		Sequence:     7,
	})
	require.NoError(t, err)

	for _, input := range []string{id.String(), id.Base62(), id.Hex()} {
		out, err := run(t, "parse", input)
		require.NoError(t, err, input)
		assert.Contains(t, out, "Datacenter ID: 3")
		assert.Contains(t, out, "Worker ID:     5")
		assert.Contains(t, out, "Sequence:      7")
		assert.Contains(t, out, "(1000 ms after epoch)")
	}

	_, err = run(t, "parse", "not-an-id!")
	assert.Error(t, err)
}

func TestParse_SignBit(t *testing.T) {
	out, err := run(t, "parse", "18446744073709551615")
	require.NoError(t, err)
	assert.Contains(t, out, "(2199023255551 ms after epoch)")
	assert.Contains(t, out, "Sequence:      4095")
}

func TestEncode(t *testing.T) {
	id := idalloc.ID(1234567890123456789)

	out, err := run(t, "encode", id.String(), "hex")
	require.NoError(t, err)
	assert.Equal(t, id.Hex(), strings.TrimSpace(out))

	out, err = run(t, "encode", id.Hex(), "decimal")
	require.NoError(t, err)
	assert.Equal(t, id.String(), strings.TrimSpace(out))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "idalloc dev\n", out)
}

func TestLoadServeConfig_Precedence(t *testing.T) {
	t.Setenv("IDALLOC_WORKER_ID", "9")
	t.Setenv("IDALLOC_DATACENTER_ID", "2")

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--worker", "4", "--log-level", "debug"}))

	cfg, err := loadServeConfig(cmd, serveFlags{workerID: 4, logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), cfg.WorkerID)
	assert.Equal(t, int64(2), cfg.DatacenterID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, config.Default().HTTPAddr, cfg.HTTPAddr)
}

func TestLoadServeConfig_Invalid(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--datacenter", "40"}))

	_, err := loadServeConfig(cmd, serveFlags{datacenterID: 40})
	require.Error(t, err)
}

func TestLoadServeConfig_MalformedEnvIdentity(t *testing.T) {
	t.Setenv("IDALLOC_WORKER_ID", "3x")

	cfg, err := loadServeConfig(newServeCmd(), serveFlags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, idalloc.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "IDALLOC_WORKER_ID")
	assert.EqualValues(t, 0, cfg.WorkerID)

	_, err = run(t, "serve")
	assert.ErrorIs(t, err, idalloc.ErrInvalidConfig)
}

func TestRunServer_Shutdown(t *testing.T) {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DBDSN = ":memory:"
	cfg.LogLevel = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, runServer(ctx, cfg))
}
