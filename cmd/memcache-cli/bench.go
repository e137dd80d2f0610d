package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	memcache "github.com/pior/memcache-text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type operationType string

const (
	cacheHit     operationType = "cache-hit"
	dynamicValue operationType = "dynamic-value"
	cacheMiss    operationType = "cache-miss"
	increment    operationType = "increment"
	deletion     operationType = "delete"
	all          operationType = "all"
)

var benchOperations = []operationType{cacheHit, dynamicValue, cacheMiss, increment, deletion}

type benchResult struct {
	Operation    operationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// tally accumulates the outcome of the operations of every worker.
type tally struct {
	ops       atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	latency   atomic.Int64

	mu       sync.Mutex
	mismatch string
}

// observe times op and counts it as a success when it returns true.
func (t *tally) observe(op func() bool) bool {
	start := time.Now()
	ok := op()
	t.ops.Add(1)
	t.latency.Add(int64(time.Since(start)))
	if ok {
		t.successes.Add(1)
	} else {
		t.failures.Add(1)
	}
	return ok
}

func (t *tally) incorrect(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mismatch == "" {
		t.mismatch = msg
	}
}

// step runs one iteration of a benchmark for a worker.
type step func(ctx context.Context, worker, n int, t *tally)

func benchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measures throughput and latency of common operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("operation")
			duration, _ := cmd.Flags().GetDuration("duration")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1")
			}

			ops := []operationType{operationType(name)}
			if operationType(name) == all {
				ops = benchOperations
			}

			for _, op := range ops {
				result, err := a.runBenchmark(cmd.Context(), op, duration, concurrency)
				if err != nil {
					return err
				}
				printBenchResult(cmd.OutOrStdout(), result)
			}
			return nil
		},
	}
	cmd.Flags().String("operation", string(all), wrapString("Operation: cache-hit, dynamic-value, cache-miss, increment, delete or all"))
	cmd.Flags().Duration("duration", 5*time.Second, wrapString("Duration of each benchmark"))
	cmd.Flags().Int("concurrency", 1, wrapString("Number of concurrent workers"))
	return cmd
}

func (a *app) runBenchmark(ctx context.Context, op operationType, duration time.Duration, concurrency int) (*benchResult, error) {
	s, err := a.benchStep(ctx, op)
	if err != nil {
		return nil, err
	}
	a.logger.Info("starting benchmark", zap.String("operation", string(op)), zap.Duration("duration", duration), zap.Int("concurrency", concurrency))

	t := &tally{}
	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := 0; time.Since(start) < duration && ctx.Err() == nil; n++ {
				s(ctx, worker, n, t)
			}
		}(i)
	}
	wg.Wait()

	result := &benchResult{
		Operation:    op,
		Duration:     time.Since(start),
		TotalOps:     t.ops.Load(),
		Successes:    t.successes.Load(),
		Failures:     t.failures.Load(),
		Correctness:  t.mismatch == "",
		ErrorMessage: t.mismatch,
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(t.latency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}
	return result, nil
}

// benchStep prepares the server for op and returns its iteration.
func (a *app) benchStep(ctx context.Context, op operationType) (step, error) {
	c := a.client
	ok := func(res memcache.Result, err error) bool { return err == nil && res.OK() }

	switch op {
	case cacheHit:
		// 1 set then 100 gets
		const key, value = "cache-hit-key", "cache-hit-value"
		if res, err := c.Set(ctx, key, value, 3600); !ok(res, err) {
			return nil, fmt.Errorf("failed to set initial value: %v %w", res, err)
		}
		return func(ctx context.Context, _, _ int, t *tally) {
			for j := 0; j < 100; j++ {
				t.observe(func() bool {
					item, err := c.Get(ctx, key)
					if !ok(item.Result, err) {
						return false
					}
					if item.Value.Text() != value {
						t.incorrect("value mismatch")
					}
					return true
				})
			}
		}, nil

	case dynamicValue:
		return func(ctx context.Context, worker, n int, t *tally) {
			key := fmt.Sprintf("dynamic-key-%d-%d", worker, n)
			value := fmt.Sprintf("dynamic-value-%d-%d", worker, n)
			if !t.observe(func() bool { return ok(c.Set(ctx, key, value, 3600)) }) {
				return
			}
			t.observe(func() bool {
				item, err := c.Get(ctx, key)
				if !ok(item.Result, err) {
					return false
				}
				if item.Value.Text() != value {
					t.incorrect("value mismatch")
				}
				return true
			})
		}, nil

	case cacheMiss:
		return func(ctx context.Context, worker, n int, t *tally) {
			key := fmt.Sprintf("nonexistent-key-%d-%d", worker, n)
			t.observe(func() bool {
				item, err := c.Get(ctx, key)
				if err != nil {
					return false
				}
				if item.Found() {
					t.incorrect("expected cache miss but got value")
					return false
				}
				return true
			})
		}, nil

	case increment:
		// 100 incr then 1 get
		const key = "increment-key"
		if res, err := c.Set(ctx, key, 0, 3600); !ok(res, err) {
			return nil, fmt.Errorf("failed to initialize counter: %v %w", res, err)
		}
		return func(ctx context.Context, _, _ int, t *tally) {
			for j := 0; j < 100; j++ {
				t.observe(func() bool {
					res, err := c.Increment(ctx, key, 1, 0, 3600)
					return ok(res.Result, err)
				})
			}
			t.observe(func() bool {
				item, err := c.Get(ctx, key)
				if !ok(item.Result, err) {
					return false
				}
				if _, err := strconv.ParseUint(item.Value.Text(), 10, 64); err != nil {
					t.incorrect("counter value is not a number")
				}
				return true
			})
		}, nil

	case deletion:
		return func(ctx context.Context, worker, n int, t *tally) {
			key := fmt.Sprintf("delete-key-%d-%d", worker, n)
			if !t.observe(func() bool { return ok(c.Set(ctx, key, "delete-value", 3600)) }) {
				return
			}
			t.observe(func() bool {
				res, err := c.Delete(ctx, key)
				return err == nil && (res.OK() || res.Code == memcache.ResNotFound)
			})
		}, nil
	}

	return nil, fmt.Errorf("unknown operation: %s", op)
}

func printBenchResult(w io.Writer, result *benchResult) {
	fmt.Fprintf(w, "Operation: %s\n", result.Operation)
	fmt.Fprintf(w, "Duration: %v\n", result.Duration)
	fmt.Fprintf(w, "Total Operations: %d\n", result.TotalOps)
	fmt.Fprintf(w, "Successes: %d\n", result.Successes)
	fmt.Fprintf(w, "Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Fprintf(w, "Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Fprintf(w, "Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Fprintf(w, "Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Fprintf(w, "Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", result.ErrorMessage)
	}
	fmt.Fprintln(w)
}
