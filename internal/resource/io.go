package resource

import (
	"context"
	"io"
)

type limitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

// LimitWriter wraps w so every write first waits for IO budget.
// A nil controller returns w unchanged.
func LimitWriter(ctx context.Context, w io.Writer, rc *Controller) io.Writer {
	if rc == nil || rc.ioLimiter == nil {
		return w
	}
	return &limitedWriter{ctx: ctx, w: w, rc: rc}
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if err := l.rc.AcquireIO(l.ctx, len(p)); err != nil {
		return 0, err
	}
	return l.w.Write(p)
}
