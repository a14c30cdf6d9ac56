package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/heyvito/pathtrace"
	"github.com/heyvito/pathtrace/internal/iputil"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// resultTimeout bounds the final inspection, which must succeed even after
// an interrupt cancelled the run.
const resultTimeout = 5 * time.Second

var runFlags struct {
	seed            int64
	live            bool
	udp             bool
	legacyReplies   bool
	sourceReprobes  bool
	targetRederives bool
	drop            float64
	timeout         time.Duration
	httpAddr        string
	hold            bool
	key             string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the protocol over a topology",
	Long: `Runs the protocol until no message is in flight, then prints every node's
role, distance, phase and marker, followed by the path found for each target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadTopology()
		if err != nil {
			return err
		}
		logger, err := makeLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		opts := &pathtrace.Options{
			LogHandler:           logger,
			Seed:                 runFlags.seed,
			DropProbability:      runFlags.drop,
			LegacyUnknownReplies: runFlags.legacyReplies,
			SourceReprobes:       runFlags.sourceReprobes,
			TargetRederives:      runFlags.targetRederives,
			CryptoKey:            []byte(runFlags.key),
		}
		if runFlags.live {
			opts.Mode = pathtrace.ModeLive
		}
		if runFlags.udp {
			opts.Mode = pathtrace.ModeLive
			opts.Transport = pathtrace.TransportUDP
		}

		network, err := pathtrace.NewNetwork(cfg, opts)
		if err != nil {
			return err
		}
		defer network.Shutdown()

		if runFlags.httpAddr != "" {
			stop, err := serveState(logger, network)
			if err != nil {
				return err
			}
			defer stop()
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		runCtx := ctx
		if runFlags.timeout > 0 {
			var runCancel context.CancelFunc
			runCtx, runCancel = context.WithTimeout(ctx, runFlags.timeout)
			defer runCancel()
		}

		runErr := network.Run(runCtx)
		resCtx, resCancel := context.WithTimeout(context.Background(), resultTimeout)
		defer resCancel()
		res, err := network.Result(resCtx)
		if err != nil {
			return multierr.Append(runErr, err)
		}
		printResult(cmd.OutOrStdout(), res)
		if runErr != nil {
			return runErr
		}

		if runFlags.hold && runFlags.httpAddr != "" {
			logger.Info("Holding state listener; interrupt to exit")
			<-ctx.Done()
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.Int64Var(&runFlags.seed, "seed", 0, "random seed for delays and losses")
	f.BoolVar(&runFlags.live, "live", false, "wait for real delays, with nodes running concurrently")
	f.BoolVar(&runFlags.udp, "udp", false, "carry live messages over loopback UDP sockets (implies --live)")
	f.BoolVar(&runFlags.legacyReplies, "legacy-replies", false, "let unknown-distance reports satisfy the predecessor test")
	f.BoolVar(&runFlags.sourceReprobes, "source-reprobes", false, "let the source probe once confirmed")
	f.BoolVar(&runFlags.targetRederives, "target-rederives", false, "let targets recompute their distance and probe on every flood")
	f.Float64Var(&runFlags.drop, "drop", 0, "probability of losing any single message")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "give up when the protocol has not quiesced after this long")
	f.StringVar(&runFlags.httpAddr, "http", "", "serve state and metrics on ADDR, or on the default-route address with \"auto\"")
	f.BoolVar(&runFlags.hold, "hold", false, "keep serving --http after the run until interrupted")
	f.StringVar(&runFlags.key, "key", "", "16-byte key sealing every packet")
	rootCmd.AddCommand(runCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, unix.SIGINT, unix.SIGTERM)
}

func serveState(logger *zap.Logger, network *pathtrace.Network) (func(), error) {
	addr, err := iputil.ListenAddress(runFlags.httpAddr)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Handler: network.Handler()}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("State server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving state", zap.String("address", "http://"+l.Addr().String()+"/"))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printResult(out io.Writer, res *pathtrace.Result) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tROLE\tDISTANCE\tPHASE\tPREDECESSOR\tMARKER")
	for _, s := range res.Nodes {
		pred := "-"
		if s.HasPredecessor {
			pred = s.Predecessor.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", s.ID, s.Role, s.Distance, s.Phase, pred, res.Markers[s.ID])
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	for _, p := range res.Paths {
		fmt.Fprintf(out, "path %s: %s\n", p.Target, p)
	}
	fmt.Fprintf(out, "\n%d sent, %d delivered, %d dropped, elapsed %s\n",
		res.Stats.TotalSent(), res.Stats.TotalDelivered(), res.Stats.TotalDropped(), res.Stats.Elapsed)
}
