package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/loomui/loom/pkg/host"
	"github.com/loomui/loom/pkg/protocol"
)

func benchCmd() *cobra.Command {
	var (
		url      string
		clients  int
		duration time.Duration
		rps      float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a running live endpoint",
		Long: `Benchmark a running live endpoint.

Each client opens a session, finds the first interactive node in the
initial patch batch, then fires events at the given rate and measures
the round trip to the resulting patch batch.

Examples:
  loom bench
  loom bench --url=ws://localhost:9000/loom/live --clients=100 --duration=1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(url, clients, duration, rps)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:8080/loom/live", "Live endpoint URL")
	cmd.Flags().IntVarP(&clients, "clients", "n", 50, "Concurrent sessions")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "Benchmark duration")
	cmd.Flags().Float64VarP(&rps, "rps", "r", 2, "Events per second per client")

	return cmd
}

type benchResult struct {
	events     atomic.Uint64
	errors     atomic.Uint64
	patchBytes atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
}

func (r *benchResult) record(d time.Duration) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.mu.Unlock()
}

func (r *benchResult) percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	i := int(p * float64(len(r.latencies)-1))
	return r.latencies[i]
}

func runBench(url string, clients int, duration time.Duration, rps float64) error {
	fmt.Printf("benchmarking %s: %d clients, %.1f events/s each, %s\n",
		url, clients, rps, duration)

	res := &benchResult{}
	deadline := time.Now().Add(duration)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := benchClient(url, deadline, rps, res); err != nil {
				res.errors.Add(1)
			}
		}()
		// Stagger dials so the server does not see a connect burst.
		time.Sleep(time.Duration(float64(time.Second) / float64(clients)))
	}
	wg.Wait()

	sort.Slice(res.latencies, func(i, j int) bool {
		return res.latencies[i] < res.latencies[j]
	})

	events := res.events.Load()
	fmt.Println()
	fmt.Printf("  events:       %d (%.1f/s)\n", events, float64(events)/duration.Seconds())
	fmt.Printf("  failures:     %d\n", res.errors.Load())
	fmt.Printf("  patch bytes:  %d\n", res.patchBytes.Load())
	if len(res.latencies) > 0 {
		fmt.Printf("  latency p50:  %s\n", res.percentile(0.50))
		fmt.Printf("  latency p95:  %s\n", res.percentile(0.95))
		fmt.Printf("  latency p99:  %s\n", res.percentile(0.99))
	}
	return nil
}

func benchClient(url string, deadline time.Time, rps float64, res *benchResult) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	hello := &protocol.Hello{Version: protocol.Version}
	data, err := hello.Frame().Encode()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	if _, err := readBenchFrame(conn, protocol.FrameWelcome, deadline, res); err != nil {
		return err
	}

	initial, err := readBenchFrame(conn, protocol.FramePatches, deadline, res)
	if err != nil {
		return err
	}
	batch, err := protocol.DecodePatchBatch(initial.Payload)
	if err != nil {
		return err
	}
	node, prop, ok := findHandler(batch)
	if !ok {
		return fmt.Errorf("no interactive node in initial batch")
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for now := range ticker.C {
		if now.After(deadline) {
			return nil
		}
		seq++
		ev := &protocol.Event{Seq: seq, Node: node, Prop: prop}
		frame, err := ev.Frame()
		if err != nil {
			return err
		}
		data, err := frame.Encode()
		if err != nil {
			return err
		}
		start := time.Now()
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return err
		}
		reply, err := readBenchFrame(conn, protocol.FramePatches, deadline, res)
		if err != nil {
			return err
		}
		res.record(time.Since(start))
		res.events.Add(1)

		got, err := protocol.DecodePatchBatch(reply.Payload)
		if err != nil {
			return err
		}
		ack := &protocol.Ack{Seq: got.Seq}
		data, err = ack.Frame().Encode()
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// readBenchFrame reads frames until one of the wanted type arrives,
// answering pings and surfacing error frames along the way.
func readBenchFrame(conn *websocket.Conn, want protocol.FrameType, deadline time.Time, res *benchResult) (*protocol.Frame, error) {
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			return nil, err
		}
		if frame.Type == protocol.FramePatches {
			res.patchBytes.Add(uint64(len(data)))
		}
		switch frame.Type {
		case want:
			return frame, nil
		case protocol.FrameControl:
			ctl, err := protocol.DecodeControl(frame.Payload)
			if err != nil {
				return nil, err
			}
			if ctl.Op == protocol.ControlPing {
				pong, err := ctl.Pong().Frame().Encode()
				if err != nil {
					return nil, err
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, pong); err != nil {
					return nil, err
				}
			}
		case protocol.FrameError:
			we, err := protocol.DecodeWireError(frame.Payload)
			if err != nil {
				return nil, err
			}
			return nil, we
		}
	}
}

// findHandler returns the first node and prop carrying a handler marker.
func findHandler(batch *protocol.PatchBatch) (host.NodeID, string, bool) {
	for _, p := range batch.Patches {
		if p.Op != protocol.OpCreateNode {
			continue
		}
		for key, v := range p.Props {
			if _, ok := v.(protocol.Handler); ok {
				return p.Node, key, true
			}
		}
	}
	for _, p := range batch.Patches {
		if p.Op == protocol.OpSetProp {
			if _, ok := p.Value.(protocol.Handler); ok {
				return p.Node, p.Key, true
			}
		}
	}
	return 0, "", false
}
