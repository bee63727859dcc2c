package spill

import (
	"context"
	"maps"
	"strings"
	"time"
)

// ExportKind is the physical action an export took.
type ExportKind uint8

const (
	// ExportNone means the destination was already current.
	ExportNone ExportKind = iota
	// ExportWrite means the block was (restored and) written.
	ExportWrite
	// ExportCopy means the backing object was copied or renamed on the store.
	ExportCopy
	// ExportLineage means a pending lineage result was written directly.
	ExportLineage
)

func (k ExportKind) String() string {
	switch k {
	case ExportNone:
		return "none"
	case ExportWrite:
		return "write"
	case ExportCopy:
		return "copy"
	case ExportLineage:
		return "lineage"
	default:
		return "unknown"
	}
}

type exportOptions struct {
	props       map[string]string
	replication int
}

// ExportOption configures Export and Move.
type ExportOption func(*exportOptions)

// WithExportProps adds format properties to the write. They override the
// envelope's own properties.
func WithExportProps(props map[string]string) ExportOption {
	return func(o *exportOptions) {
		if o.props == nil {
			o.props = make(map[string]string, len(props))
		}
		maps.Copy(o.props, props)
	}
}

// WithExportReplication overrides the replication factor of the write.
func WithExportReplication(n int) ExportOption {
	return func(o *exportOptions) {
		o.replication = n
	}
}

// Export writes the current content to path in format. An empty format
// keeps the envelope's format. Exactly one of these applies, in order:
//
//   - the content is dirty, path uses another storage scheme, or path
//     differs from the backing path and format differs: the block is
//     restored if needed and written;
//   - path differs from the backing path: the backing object is copied
//     on the store (or the lineage result is written to path);
//   - a pending lineage result that cannot be read directly is written
//     once and marked realized;
//   - nothing is written.
//
// Export fails with ErrLockConflict while a writer holds the envelope.
func (e *Envelope[T]) Export(ctx context.Context, path, format string, optFns ...ExportOption) error {
	if err := e.m.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.exportLocked(ctx, path, format, optFns)
	return err
}

// ExportDefault exports to the backing path in the envelope's format and
// records that the backing path exists.
func (e *Envelope[T]) ExportDefault(ctx context.Context, optFns ...ExportOption) error {
	if err := e.m.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.exportLocked(ctx, e.backingPath, e.format, optFns); err != nil {
		return err
	}
	e.exists = true
	return nil
}

// Move relocates the persisted copy to path and makes path the new
// backing path. A clean copy in the same scheme and format is renamed on
// the store; anything else is exported. Move reports false, without
// changing anything, when the format differs and the content is neither
// dirty nor missing from memory.
func (e *Envelope[T]) Move(ctx context.Context, path, format string, optFns ...ExportOption) (bool, error) {
	if err := e.m.checkOpen(); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusModify {
		return false, e.lockError("move")
	}
	if e.backend == nil {
		return false, configError("envelope %d has no backend", e.id)
	}
	if path == "" {
		return false, configError("move of envelope %d without a target path", e.id)
	}
	if format == "" {
		format = e.format
	}

	eqScheme := schemeOf(path) == schemeOf(e.backingPath)
	eqFormat := format == e.format

	lineageMissing := false
	if e.lineage != nil {
		ok, err := e.backingExistsLocked(ctx)
		if err != nil {
			return false, err
		}
		lineageMissing = !ok
	}

	switch {
	case e.dirty || !eqScheme || (!eqFormat && e.status.empty()) || lineageMissing:
		if _, err := e.exportLocked(ctx, path, format, optFns); err != nil {
			return false, err
		}
	case eqFormat:
		if path == e.backingPath {
			return true, nil
		}
		start := time.Now()
		err := e.renameLocked(ctx, path, format, e.writeOptions(format, optFns))
		e.m.opts.metricsCollector.RecordExport(ExportCopy, time.Since(start), err)
		e.log.LogExport(ctx, path, ExportCopy, err)
		if err != nil {
			return false, err
		}
	default:
		return false, nil
	}

	e.backingPath = path
	e.format = format
	e.meta.Format = format
	e.exists = true
	e.dirty = false
	return true, nil
}

func (e *Envelope[T]) renameLocked(ctx context.Context, path, format string, wopts WriteOptions) error {
	if err := e.backend.Delete(ctx, path); err != nil {
		return &PersistError{Target: "backing", Path: path, cause: err}
	}
	if err := e.backend.Rename(ctx, e.backingPath, path); err != nil {
		return &PersistError{Target: "backing", Path: path, cause: err}
	}
	if err := e.backend.WriteMeta(ctx, path, format, wopts); err != nil {
		return &PersistError{Target: "backing", Path: path, cause: err}
	}
	return nil
}

func (e *Envelope[T]) exportLocked(ctx context.Context, path, format string, optFns []ExportOption) (ExportKind, error) {
	start := time.Now()
	kind, err := e.exportCaseLocked(ctx, path, format, optFns)
	e.m.opts.metricsCollector.RecordExport(kind, time.Since(start), err)
	e.log.LogExport(ctx, path, kind, err)
	return kind, err
}

func (e *Envelope[T]) exportCaseLocked(ctx context.Context, path, format string, optFns []ExportOption) (ExportKind, error) {
	if e.status == StatusModify {
		return ExportNone, e.lockError("export")
	}
	if e.backend == nil {
		return ExportNone, configError("envelope %d has no backend", e.id)
	}
	if path == "" {
		return ExportNone, configError("export of envelope %d without a target path", e.id)
	}
	if format == "" {
		format = e.format
	}

	if err := e.copyFromDevicesLocked(ctx); err != nil {
		return ExportNone, err
	}

	pWrite := path != e.backingPath
	if !pWrite {
		e.exists = true
	}
	eqScheme := schemeOf(path) == schemeOf(e.backingPath)
	wopts := e.writeOptions(format, optFns)

	switch {
	case e.dirty || !eqScheme || (pWrite && format != e.format):
		return ExportWrite, e.writeBlockLocked(ctx, path, format, pWrite, wopts)

	case pWrite:
		if err := e.backend.Delete(ctx, path); err != nil {
			return ExportCopy, &PersistError{Target: "backing", Path: path, cause: err}
		}
		var err error
		if e.lineage == nil || e.lineage.AllowsShortCircuitRead() {
			if e.backingPath == "" {
				return ExportCopy, configError("envelope %d has no backing path to copy", e.id)
			}
			err = e.backend.Copy(ctx, e.backingPath, path)
		} else {
			err = e.lineage.WriteTo(ctx, path, format)
		}
		if err == nil {
			err = e.backend.WriteMeta(ctx, path, format, wopts)
		}
		if err != nil {
			return ExportCopy, &PersistError{Target: "backing", Path: path, cause: err}
		}
		return ExportCopy, nil

	case e.lineage != nil && e.lineage.IsPending() && !e.lineage.IsStoreFile() && !e.lineage.AllowsShortCircuitRead():
		err := e.lineage.WriteTo(ctx, path, format)
		if err == nil {
			err = e.backend.WriteMeta(ctx, path, format, wopts)
		}
		if err != nil {
			return ExportLineage, &PersistError{Target: "backing", Path: path, cause: err}
		}
		e.lineage.SetPending(false)
		return ExportLineage, nil

	default:
		return ExportNone, nil
	}
}

// writeBlockLocked restores the block if needed, writes it to path and
// then settles the envelope as a read release would.
func (e *Envelope[T]) writeBlockLocked(ctx context.Context, path, format string, pWrite bool, wopts WriteOptions) error {
	pinned := e.status.IsPinned()

	if !e.present {
		e.restoreFromSoftCacheLocked(ctx)
	}
	if !e.present && e.status.empty() {
		if err := e.readFromBackingLocked(ctx); err != nil {
			return err
		}
	}
	if !e.present && e.status == StatusCached {
		if err := e.restoreEvictedLocked(ctx); err != nil {
			return err
		}
	}
	if !e.present {
		return configError("envelope %d has no data to export", e.id)
	}

	e.refreshMetaLocked()
	wopts.Meta.Rows, wopts.Meta.Cols, wopts.Meta.NNZ = e.meta.Rows, e.meta.Cols, e.meta.NNZ

	writeErr := e.backend.Write(ctx, path, format, wopts, e.block)
	if writeErr != nil {
		writeErr = &PersistError{Target: "backing", Path: path, cause: writeErr}
	} else if !pWrite {
		e.dirty = false
	}

	if pinned {
		return writeErr
	}
	e.status = e.cachedStatusLocked(e.noWriteLocked())
	if err := e.evictLocked(ctx, false); err != nil && writeErr == nil {
		return err
	}
	return writeErr
}

func (e *Envelope[T]) backingExistsLocked(ctx context.Context) (bool, error) {
	if e.backingPath == "" {
		return false, nil
	}
	ok, err := e.backend.Exists(ctx, e.backingPath)
	if err != nil {
		return false, &RestoreError{Source: "backing", Path: e.backingPath, cause: err}
	}
	return ok, nil
}

func (e *Envelope[T]) writeOptions(format string, optFns []ExportOption) WriteOptions {
	o := exportOptions{replication: e.replication}
	if len(e.props) > 0 {
		o.props = maps.Clone(e.props)
	}
	for _, fn := range optFns {
		fn(&o)
	}

	meta := e.meta
	meta.Format = format
	return WriteOptions{
		Replication: o.replication,
		Props:       o.props,
		Meta:        meta,
	}
}

// schemeOf returns the lower-cased URL scheme of path, or "file".
func schemeOf(path string) string {
	if i := strings.Index(path, "://"); i > 0 {
		return strings.ToLower(path[:i])
	}
	return "file"
}
