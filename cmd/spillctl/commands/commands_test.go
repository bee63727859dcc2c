package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spill"
	"github.com/hupe1980/spill/block"
	"github.com/hupe1980/spill/config"
	"github.com/hupe1980/spill/internal/evictfile"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeEvictionFile(t *testing.T, dir string, id int64, payload []byte) string {
	t.Helper()
	data, err := evictfile.Encode(payload, spill.CompressionLZ4)
	require.NoError(t, err)
	path := evictfile.Path(dir, spill.DefaultEvictionPrefix, id, spill.DefaultEvictionExtension)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	writeEvictionFile(t, dir, 1, bytes.Repeat([]byte("spill"), 1000))
	writeEvictionFile(t, dir, 2, []byte("x"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("?"), 0o600))

	out, err := run(t, "inspect", "--verify", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "COMPRESSION")
	assert.Contains(t, out, "lz4")
	assert.Contains(t, out, "4.9 KiB")
	assert.NotContains(t, out, "unrelated")
}

func TestInspect_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := writeEvictionFile(t, dir, 3, bytes.Repeat([]byte{7}, 512))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	// The header alone is still intact.
	_, err = run(t, "inspect", path)
	require.NoError(t, err)

	out, err := run(t, "inspect", "--verify", path)
	assert.Error(t, err)
	assert.Contains(t, out, "corrupt")

	require.NoError(t, os.WriteFile(path, []byte("SPIL"), 0o600))
	_, err = run(t, "inspect", path)
	assert.Error(t, err)
}

func TestPurge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeEvictionFile(t, dir, 1, []byte("a"))
	writeEvictionFile(t, dir, 2, []byte("b"))

	out, err := run(t, "purge", "--dir", dir, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete 2 files")
	assert.DirExists(t, dir)

	out, err = run(t, "purge", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 files")
	assert.NoDirExists(t, dir)
}

func TestPurge_KeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeEvictionFile(t, dir, 1, []byte("a"))
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, nil, 0o600))

	_, err := run(t, "purge", "--dir", dir)
	require.NoError(t, err)
	assert.FileExists(t, keep)
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 2MiB\n"), 0o600))

	out, err := run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "threshold: 2.0 MiB")

	out, err = run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")

	require.NoError(t, os.WriteFile(path, []byte("write_buffer:\n  policy: mru\n"), 0o600))
	_, err = run(t, "config", "validate", "--config", path)
	assert.Error(t, err)
}

func TestStress(t *testing.T) {
	t.Setenv("SPILL_CACHE_ROOT", t.TempDir())
	t.Setenv("SPILL_THRESHOLD", "1KiB")
	t.Setenv("SPILL_MEMORY_CEILING", "256MiB")
	t.Setenv("SPILL_WRITE_BUFFER_BYTES", "32KiB")
	t.Setenv("SPILL_LOGGING_FORMAT", "none")
	export := t.TempDir()

	out, err := run(t, "stress",
		"--envelopes", "8",
		"--size", "8KiB",
		"--rounds", "3",
		"--workers", "2",
		"--export", export,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "reads")
	assert.Contains(t, out, "24 in")

	files, err := filepath.Glob(filepath.Join(export, "block-*"))
	require.NoError(t, err)
	// Each export writes the data file and its sidecar.
	assert.Len(t, files, 16)
}

func TestStress_BadSize(t *testing.T) {
	t.Setenv("SPILL_CACHE_ROOT", t.TempDir())
	_, err := run(t, "stress", "--size", "big")
	assert.Error(t, err)
}

func TestMatrixBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.BackingConfig{
		LocalRoot: t.TempDir(),
		Format:    "binary",
		MinIO: &config.MinIOConfig{
			Endpoint:  "localhost:9000",
			Bucket:    "blocks",
			SecretKey: "hidden",
		},
	}

	r, err := matrixBackend(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	m := block.NewDense(2, 2)
	m.Set(1, 1, 3)
	require.NoError(t, r.Write(ctx, "file://a.bin", "binary", spill.WriteOptions{}, m))

	got, err := r.Read(ctx, "a.bin", 2, 2)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	_, err = r.Read(ctx, "gs://bucket/a.bin", 2, 2)
	assert.Error(t, err)
}

func TestConfig_HidesSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spill.yaml")
	content := "backing:\n  minio:\n    endpoint: localhost:9000\n    bucket: b\n    secret_key: topsecret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "endpoint: localhost:9000")
	assert.NotContains(t, out, "topsecret")
}
