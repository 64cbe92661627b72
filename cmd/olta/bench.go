package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/olta-dev/olta/internal/errors"
	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/protocol"
)

type benchConfig struct {
	URL        string
	ProcessID  string
	Token      string
	Runs       int
	Collection string
	Interval   time.Duration
	Timeout    time.Duration
}

func benchCmd() *cobra.Command {
	cfg := benchConfig{
		URL:        "ws://localhost:8080",
		ProcessID:  "bench",
		Runs:       3,
		Collection: "vertices",
		Interval:   300 * time.Millisecond,
		Timeout:    3 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure CreateDocument round-trip latency",
		Long: `Connect to a running server and measure the round trip of
CreateDocument requests: the time from sending the request to receiving
the next event on the same connection.

The first request warms the connection up and is not counted.

Examples:
  olta bench
  olta bench --url=wss://olta.example.com --process=lobby-1 --token=secret --runs=50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Runs < 1 {
				return errors.Newf(errors.CategoryCLI, "--runs must be at least 1")
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.URL, "url", cfg.URL, "Server base URL (ws:// or wss://)")
	cmd.Flags().StringVarP(&cfg.ProcessID, "process", "p", cfg.ProcessID, "Process id to write to")
	cmd.Flags().StringVarP(&cfg.Token, "token", "t", cfg.Token, "Server token")
	cmd.Flags().IntVarP(&cfg.Runs, "runs", "n", cfg.Runs, "Number of measured requests")
	cmd.Flags().StringVar(&cfg.Collection, "collection", cfg.Collection, "Collection to create documents in")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", cfg.Interval, "Pause between requests")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "How long to wait for each reply")

	return cmd
}

func (c benchConfig) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimSuffix(c.URL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/ws/" + url.PathEscape(c.ProcessID)
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runBench(ctx context.Context, out io.Writer, cfg benchConfig) error {
	endpoint, err := cfg.endpoint()
	if err != nil {
		return errors.Newf(errors.CategoryCLI, "invalid --url %q: %v", cfg.URL, err)
	}

	fmt.Fprintf(out, "Connecting to %s\n", endpoint)
	fmt.Fprintf(out, "Instruction: CreateDocument\n\n")

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		e := errors.New("E180").Wrap(err)
		if resp != nil {
			e.WithDetail(resp.Status)
		}
		return e
	}
	defer ws.Close()

	// FullSync.
	_ = ws.SetReadDeadline(time.Now().Add(cfg.Timeout))
	if _, _, err := ws.ReadMessage(); err != nil {
		return errors.New("E180").WithDetail("no FullSync received").Wrap(err)
	}

	var latencies []float64
	for i := 0; i <= cfg.Runs; i++ {
		if err := ctx.Err(); err != nil {
			break
		}

		msg, err := protocol.EncodeInput(protocol.CreateDocument{
			CollectionName: cfg.Collection,
			Document:       benchDocument(cfg.Collection),
		})
		if err != nil {
			return err
		}

		rtt, err := roundTrip(ws, msg, cfg.Timeout)
		if err != nil {
			return errors.New("E180").Wrap(err)
		}
		if i > 0 {
			latencies = append(latencies, rtt)
			s := summarize(latencies)
			fps := 0.0
			if rtt > 0 {
				fps = 1_000_000 / rtt
			}
			fmt.Fprintf(out, "\rPing: %9.2f µs | Avg: %9.2f µs | Jitter: %9.2f µs | FPS: %7.1f     ",
				rtt, s.Mean, s.Jitter, fps)
		}

		select {
		case <-ctx.Done():
		case <-time.After(cfg.Interval):
		}
	}

	s := summarize(latencies)
	fmt.Fprintf(out, "\n\n%s\n", color.New(color.Bold).Sprint("--- Final Stats ---"))
	fmt.Fprintf(out, "Samples: %d\n", s.Samples)
	if s.Samples == 0 {
		return nil
	}
	fmt.Fprintf(out, "Average: %.2f µs\n", s.Mean)
	fmt.Fprintf(out, "Min: %.2f µs\n", s.Min)
	fmt.Fprintf(out, "Max: %.2f µs\n", s.Max)
	fmt.Fprintf(out, "Jitter (stdev): %.2f µs\n", s.Jitter)
	return nil
}

// roundTrip sends msg and waits for the next message, returning the elapsed
// time in microseconds. A reply timeout still counts as a sample.
func roundTrip(ws *websocket.Conn, msg []byte, timeout time.Duration) (float64, error) {
	start := time.Now()
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return 0, err
	}
	_ = ws.SetReadDeadline(start.Add(timeout))
	if _, _, err := ws.ReadMessage(); err != nil && !isTimeout(err) {
		return 0, err
	}
	return float64(time.Since(start).Nanoseconds()) / 1000.0, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func benchDocument(collection string) lobby.Document {
	r := func() string { return fmt.Sprintf("%dn", rand.IntN(1001)) }

	doc := lobby.Document{Creator: "bench"}
	switch lobby.Kind(collection) {
	case lobby.KindCube:
		doc.Payload = &lobby.Cube{X: r(), Y: r(), Z: r(), Color: "16711680n", RotX: "0n", RotY: "0n", RotZ: "0n"}
	case lobby.KindSplash:
		doc.Payload = &lobby.Splash{X: r(), Y: r(), Seed: r()}
	default:
		doc.Payload = &lobby.Vertex{
			X: r(), Y: r(), Z: r(),
			LineColor:   "16711680n",
			VertexColor: "65280n",
			CameraX:     "0n",
			CameraY:     "0n",
			CameraZ:     "10n",
		}
	}
	return doc
}

type latencyStats struct {
	Samples int
	Mean    float64
	Min     float64
	Max     float64
	// Jitter is the population standard deviation.
	Jitter float64
}

func summarize(samples []float64) latencyStats {
	s := latencyStats{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}
	s.Min, s.Max = samples[0], samples[0]
	var sum float64
	for _, v := range samples {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(samples))
	if len(samples) > 1 {
		var sq float64
		for _, v := range samples {
			d := v - s.Mean
			sq += d * d
		}
		s.Jitter = math.Sqrt(sq / float64(len(samples)))
	}
	return s
}
