package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spill"
	"github.com/hupe1980/spill/block"
	"github.com/hupe1980/spill/config"
	spillprom "github.com/hupe1980/spill/metrics/prometheus"
)

type stressOptions struct {
	envelopes int
	size      string
	rounds    int
	workers   int
	export    string
}

func newStressCommand() *cobra.Command {
	var o stressOptions

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a synthetic acquire/release workload",
		Long: `Create envelopes holding dense matrices, then acquire and release them
repeatedly from several workers so that blocks move through the soft
cache, the write-back buffer and eviction files. Prints manager
statistics at the end. With metrics enabled in the configuration the
Prometheus endpoint stays up while the workload runs.

Examples:
  spillctl stress --envelopes 256 --size 1MiB --rounds 8
  spillctl stress --export file:///tmp/out`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStress(cmd.Context(), cmd.OutOrStdout(), cfg, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.envelopes, "envelopes", 64, "number of envelopes")
	f.StringVar(&o.size, "size", "256KiB", "approximate block size")
	f.IntVar(&o.rounds, "rounds", 4, "read rounds per envelope")
	f.IntVar(&o.workers, "workers", 4, "concurrent workers")
	f.StringVar(&o.export, "export", "", "export every block below this path prefix")
	return cmd
}

func runStress(ctx context.Context, w io.Writer, cfg *config.Config, o stressOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	size, err := config.ParseByteSize(o.size)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if o.envelopes <= 0 || o.workers <= 0 || o.rounds < 0 {
		return errors.New("envelopes and workers must be positive, rounds non-negative")
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts = append(opts, spill.WithMetricsCollector(spillprom.NewCollector(reg)))

	m, err := spill.InitCaching(cfg.RunID, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = m.CleanupCacheDir(context.Background()) }()
	reg.MustRegister(spillprom.NewStatsCollector(m))

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.Logger().Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
		fmt.Fprintf(w, "metrics on http://%s/metrics\n", cfg.Metrics.Address)
	}

	backend, err := matrixBackend(ctx, cfg.Backing, m.Logger().Logger)
	if err != nil {
		return err
	}

	cols := 64
	rows := max(1, int(size)/(8*cols))

	envs := make([]*spill.Envelope[*block.Matrix], o.envelopes)
	for i := range envs {
		env, err := spill.NewEnvelope(m, spill.EnvelopeConfig[*block.Matrix]{
			Codec:   block.MatrixCodec{},
			Backend: backend,
			Format:  cfg.Backing.Format,
		})
		if err != nil {
			return err
		}
		if _, err := env.AcquireModify(ctx, randomMatrix(rows, cols)); err != nil {
			return err
		}
		if err := env.Release(ctx); err != nil {
			return err
		}
		envs[i] = env
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, env := range envs {
		g.Go(func() error {
			for range o.rounds {
				b, err := env.AcquireRead(gctx)
				if err != nil {
					return err
				}
				_ = b.Get(rows-1, cols-1)
				if err := env.Release(gctx); err != nil {
					return err
				}
			}
			if o.export != "" {
				return env.Export(gctx, fmt.Sprintf("%s/block-%05d", o.export, i), "")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	for _, env := range envs {
		if err := env.ClearData(ctx); err != nil {
			return err
		}
	}

	printStats(w, m.Stats(), o.envelopes*o.rounds, elapsed)
	return nil
}

func randomMatrix(rows, cols int) *block.Matrix {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rand.Float64()
	}
	m, _ := block.NewDenseFrom(rows, cols, data)
	return m
}

func printStats(w io.Writer, s spill.Stats, reads int, elapsed time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "dir\t%s\n", s.Dir)
	fmt.Fprintf(tw, "threshold\t%s\n", humanize.IBytes(uint64(s.Threshold)))
	fmt.Fprintf(tw, "envelopes\t%d\n", s.Envelopes)
	fmt.Fprintf(tw, "reads\t%d in %s\n", reads, elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "write buffer\t%s of %s, %d flushes (%s)\n",
		humanize.IBytes(uint64(s.Buffer.Bytes)), humanize.IBytes(uint64(s.Buffer.LimitBytes)),
		s.Buffer.Flushes, humanize.IBytes(uint64(s.Buffer.FlushedBytes)))
	fmt.Fprintf(tw, "soft cache\t%d hits, %d misses, %d reclaimed\n",
		s.SoftCache.Hits, s.SoftCache.Misses, s.SoftCache.Reclaimed)
}
