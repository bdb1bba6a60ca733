// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/client"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
	"github.com/Thermoquad/knxstat/pkg/stats"
)

var (
	monitorText        bool
	monitorMetricsAddr string
	monitorStatsEvery  time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show live bus traffic",
	Long: `Connect and display every frame sent and received, together with
traffic statistics and the latest value of each group address.

On a terminal a full-screen view is used; otherwise (or with --text) each
frame is printed as it arrives and statistics are printed periodically.

Optional outputs:
  --metrics-addr :9100         serve Prometheus metrics on /metrics
  --mirror ws://host/path      mirror frames to a websocket as CBOR events

For mirror authentication, the password is read from the
KNXSTAT_MIRROR_PASSWORD environment variable, or prompted interactively if
not set.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorText, "text", false, "Plain text output even on a terminal")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	monitorCmd.Flags().DurationVar(&monitorStatsEvery, "stats-interval", 30*time.Second, "Statistics interval in text mode (0 disables)")
	monitorCmd.Flags().StringVar(&mirrorURL, "mirror", "", "Mirror frames to this websocket URL (ws:// or wss://)")
	monitorCmd.Flags().StringVar(&mirrorUsername, "mirror-user", "", "Username for mirror HTTP Basic auth")
	monitorCmd.Flags().BoolVar(&mirrorNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// monitorEvent is one frame or error seen by the client
type monitorEvent struct {
	at       time.Time
	outgoing bool
	frame    knxnet.Frame
	err      error
}

// frameFeed is a client plugin forwarding traffic to emit
type frameFeed struct {
	emit func(monitorEvent)
}

func (f *frameFeed) OnIncomingFrame(fr knxnet.Frame) {
	f.emit(monitorEvent{at: time.Now(), frame: fr})
}

func (f *frameFeed) OnOutgoingFrame(fr knxnet.Frame) {
	f.emit(monitorEvent{at: time.Now(), outgoing: true, frame: fr})
}

func (f *frameFeed) OnError(err error) {
	f.emit(monitorEvent{at: time.Now(), err: err})
}

// summary renders e on a single line
func (e monitorEvent) summary() string {
	if e.err != nil {
		return "ERROR: " + e.err.Error()
	}
	dir := "RX"
	if e.outgoing {
		dir = "TX"
	}
	body := strings.Join(strings.Fields(knxnet.FormatBody(e.frame.Body)), " ")
	return fmt.Sprintf("%s %s %s", dir, knxnet.FormatServiceType(e.frame.Service()), body)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	feed := &frameFeed{}
	plugins := []any{feed}
	if mirrorURL != "" {
		mirror, err := openMirror(ctx)
		if err != nil {
			return err
		}
		defer mirror.Close()
		plugins = append(plugins, mirror)
	}

	c, err := client.New(cfg, client.WithPlugins(plugins...))
	if err != nil {
		return err
	}
	defer c.Close()

	if monitorMetricsAddr != "" {
		stop, err := serveMetrics(c.Collector())
		if err != nil {
			return err
		}
		defer stop()
	}

	if !monitorText && term.IsTerminal(int(os.Stdout.Fd())) {
		return runMonitorTUI(ctx, c, cfg, feed)
	}
	return runMonitorText(ctx, c, cfg, feed)
}

// serveMetrics exposes the collector on --metrics-addr until stop is called
func serveMetrics(collector *stats.Collector) (stop func(), err error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(stats.NewPrometheusCollector(collector, "knxstat")); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: monitorMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := logger.Logger("cli")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "addr", monitorMetricsAddr, "err", err)
		}
	}()
	log.Infow("serving metrics", "addr", monitorMetricsAddr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func runMonitorText(ctx context.Context, c *client.Client, cfg client.Config, feed *frameFeed) error {
	feed.emit = func(e monitorEvent) {
		if e.err != nil {
			fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", e.at.Format("15:04:05.000"), e.err)
			return
		}
		dir := "RX"
		if e.outgoing {
			dir = "TX"
		}
		fmt.Printf("%s %s", dir, knxnet.FormatFrame(e.frame, e.at))
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	fmt.Printf("knxstat - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", describeConnection(c, cfg))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var tick <-chan time.Time
	if monitorStatsEvery > 0 {
		ticker := time.NewTicker(monitorStatsEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%s", c.Statistics())
			return nil
		case <-c.Done():
			if err := c.Err(); err != nil {
				return fmt.Errorf("session ended: %w", err)
			}
			return errors.New("session ended")
		case <-tick:
			fmt.Printf("\n%s\n", c.Statistics())
		}
	}
}

func runMonitorTUI(ctx context.Context, c *client.Client, cfg client.Config, feed *frameFeed) error {
	// log lines would tear the full-screen view
	logger.SetOutput(zapcore.AddSync(io.Discard))

	m := newMonitorModel(ctx, c, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	feed.emit = func(e monitorEvent) { p.Send(e) }

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
