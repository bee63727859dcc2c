package spill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackedEnvelope(t *testing.T, m *Manager, backend *memBackend) (*Envelope[*vec], *vecCodec) {
	t.Helper()
	backend.put("data/a", newVec(32, 1), "binary")
	return newTestEnvelope(t, m, EnvelopeConfig[*vec]{
		Backend:     backend,
		BackingPath: "data/a",
		Format:      "binary",
	})
}

func TestExport_DirtyWrites(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	_, err := e.AcquireModify(ctx, newVec(32, 50))
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx))

	require.NoError(t, e.Export(ctx, "data/a", "binary"))
	assert.Equal(t, 1, backend.physicalWrites())
	assert.Equal(t, 1, backend.count("write"))
	assert.False(t, e.IsDirty())
	assert.True(t, e.Exists())

	obj, ok := backend.get("data/a")
	require.True(t, ok)
	assert.Equal(t, newVec(32, 50).vals, obj.data)
	assert.Equal(t, StatusCached, e.Status())

	// Clean now: the second export is a no-op.
	require.NoError(t, e.Export(ctx, "data/a", "binary"))
	assert.Equal(t, 1, backend.physicalWrites())
}

func TestExport_OtherSchemeWrites(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	require.NoError(t, e.Export(ctx, "s3://bucket/a", "binary"))
	assert.Equal(t, 1, backend.count("read"))
	assert.Equal(t, 1, backend.count("write"))
	assert.Zero(t, backend.count("copy"))

	obj, ok := backend.get("s3://bucket/a")
	require.True(t, ok)
	assert.Equal(t, newVec(32, 1).vals, obj.data)

	// The read behaves like an acquire/release pair from EMPTY.
	assert.Equal(t, StatusCachedNoWrite, e.Status())
	assert.Equal(t, 0, e.Readers())
}

func TestExport_OtherFormatWrites(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	require.NoError(t, e.Export(ctx, "data/b", "csv"))
	assert.Equal(t, 1, backend.count("write"))
	assert.Zero(t, backend.count("copy"))

	obj, ok := backend.get("data/b")
	require.True(t, ok)
	assert.Equal(t, "csv", obj.format)
}

func TestExport_SameFormatCopies(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	require.NoError(t, e.Export(ctx, "data/b", ""))
	assert.Equal(t, 1, backend.physicalWrites())
	assert.Equal(t, 1, backend.count("copy"))
	assert.Equal(t, 1, backend.count("delete"))
	assert.Equal(t, 1, backend.count("meta"))
	assert.Zero(t, backend.count("read"))

	obj, ok := backend.get("data/b")
	require.True(t, ok)
	assert.Equal(t, newVec(32, 1).vals, obj.data)
	assert.Equal(t, "binary", obj.format)
	assert.Equal(t, StatusEmpty, e.Status())
}

func TestExport_LineageCopy(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	lin := newFakeLineage(newVec(32, 5))
	lin.backend = backend
	e, _ := newTestEnvelope(t, m, EnvelopeConfig[*vec]{
		Backend:     backend,
		BackingPath: "data/a",
		Format:      "binary",
		Lineage:     lin,
	})

	require.NoError(t, e.Export(ctx, "data/b", "binary"))
	assert.Equal(t, []string{"data/b"}, lin.writes)
	assert.Zero(t, backend.count("copy"))
	assert.Zero(t, lin.materialized)
}

func TestExport_PendingLineage(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	lin := newFakeLineage(newVec(32, 5))
	lin.backend = backend
	e, _ := newTestEnvelope(t, m, EnvelopeConfig[*vec]{
		Backend:     backend,
		BackingPath: "data/a",
		Format:      "binary",
		Lineage:     lin,
	})

	require.NoError(t, e.Export(ctx, "data/a", "binary"))
	assert.Equal(t, []string{"data/a"}, lin.writes)
	assert.False(t, lin.IsPending())
	assert.Zero(t, backend.count("write"))
	assert.Equal(t, 1, backend.count("meta"))

	// Realized: nothing more to do.
	require.NoError(t, e.Export(ctx, "data/a", "binary"))
	assert.Len(t, lin.writes, 1)
}

func TestExport_NoOp(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	require.NoError(t, e.Export(ctx, "data/a", "binary"))
	assert.Zero(t, backend.physicalWrites())
	assert.Zero(t, backend.count("read"))
	assert.True(t, e.Exists())
}

func TestExport_WhileReading(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newBackedEnvelope(t, m, backend)

	_, err := e.AcquireRead(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Export(ctx, "s3://bucket/a", "binary"))
	assert.Equal(t, StatusRead, e.Status())
	assert.Equal(t, 1, e.Readers())
	assert.Equal(t, 1, backend.count("read"))
	require.NoError(t, e.Release(ctx))
}

func TestExport_Errors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	t.Run("WhileModify", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)
		_, err := e.AcquireModify(ctx, newVec(32, 2))
		require.NoError(t, err)

		assert.ErrorIs(t, e.Export(ctx, "data/a", "binary"), ErrLockConflict)
		assert.Zero(t, backend.physicalWrites())
	})

	t.Run("NoBackend", func(t *testing.T) {
		e, _ := newTestEnvelope(t, m, EnvelopeConfig[*vec]{})
		assert.ErrorIs(t, e.Export(ctx, "data/a", "binary"), ErrConfiguration)
	})

	t.Run("NoPath", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)
		assert.ErrorIs(t, e.Export(ctx, "", "binary"), ErrConfiguration)
	})

	t.Run("WriteFailure", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)
		_, err := e.AcquireModify(ctx, newVec(32, 2))
		require.NoError(t, err)
		require.NoError(t, e.Release(ctx))

		backend.failOn = "write"
		err = e.Export(ctx, "data/a", "binary")
		require.ErrorIs(t, err, ErrPersistFailure)
		assert.True(t, e.IsDirty())
		assert.Equal(t, StatusCached, e.Status())
	})
}

func TestExportDefault(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	backend := newMemBackend()
	e, _ := newTestEnvelope(t, m, EnvelopeConfig[*vec]{
		Backend:     backend,
		BackingPath: "data/new",
		Format:      "binary",
	})
	require.False(t, e.Exists())

	_, err := e.AcquireModify(ctx, newVec(32, 3))
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx))

	require.NoError(t, e.ExportDefault(ctx, WithExportReplication(3)))
	assert.True(t, e.Exists())
	assert.False(t, e.IsDirty())

	obj, ok := backend.get("data/new")
	require.True(t, ok)
	assert.Equal(t, newVec(32, 3).vals, obj.data)
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	t.Run("CleanRenames", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)

		moved, err := e.Move(ctx, "data/b", "binary")
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, 1, backend.count("rename"))
		assert.Zero(t, backend.count("write"))
		assert.Equal(t, "data/b", e.BackingPath())

		_, ok := backend.get("data/a")
		assert.False(t, ok)
		_, ok = backend.get("data/b")
		assert.True(t, ok)
	})

	t.Run("DirtyExports", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)
		_, err := e.AcquireModify(ctx, newVec(32, 8))
		require.NoError(t, err)
		require.NoError(t, e.Release(ctx))

		moved, err := e.Move(ctx, "data/b", "binary")
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, 1, backend.count("write"))
		assert.Zero(t, backend.count("rename"))
		assert.Equal(t, "data/b", e.BackingPath())
		assert.False(t, e.IsDirty())

		obj, ok := backend.get("data/b")
		require.True(t, ok)
		assert.Equal(t, newVec(32, 8).vals, obj.data)
	})

	t.Run("OtherFormatWhileCached", func(t *testing.T) {
		backend := newMemBackend()
		e, _ := newBackedEnvelope(t, m, backend)
		_, err := e.AcquireModify(ctx, newVec(32, 8))
		require.NoError(t, err)
		require.NoError(t, e.Release(ctx))
		require.NoError(t, e.ExportDefault(ctx))
		require.False(t, e.IsDirty())
		require.Equal(t, StatusCached, e.Status())

		moved, err := e.Move(ctx, "data/b", "csv")
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, "data/a", e.BackingPath())
	})

	t.Run("MissingLineageOutputExports", func(t *testing.T) {
		backend := newMemBackend()
		lin := newFakeLineage(newVec(32, 5))
		e, _ := newTestEnvelope(t, m, EnvelopeConfig[*vec]{
			Backend:     backend,
			BackingPath: "data/pending",
			Format:      "binary",
			Lineage:     lin,
		})

		moved, err := e.Move(ctx, "data/b", "binary")
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, []string{"data/b"}, lin.writes)
		assert.Zero(t, backend.count("rename"))
	})
}

func TestSchemeOf(t *testing.T) {
	assert.Equal(t, "file", schemeOf("/tmp/x"))
	assert.Equal(t, "file", schemeOf(""))
	assert.Equal(t, "s3", schemeOf("S3://bucket/key"))
	assert.Equal(t, "mem", schemeOf("mem://a"))
}
