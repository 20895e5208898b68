// Command lfqstress runs producers and consumers against one of the lfqueue
// variants and checks that nothing is lost, duplicated or reordered.
//
//	lfqstress -queue mpmc -producers 8 -consumers 4 -n 1000000
//	lfqstress -config run.json -json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/sugawarayuuta/sonnet"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/aradilov/lfqueue"
	"github.com/aradilov/lfqueue/internal/stress"
	"github.com/aradilov/lfqueue/lfqotel"
)

// fileConfig is the -config file layout. Flags given on the command line
// override it.
type fileConfig struct {
	Queue       string `json:"queue"`
	Capacity    uint64 `json:"capacity"`
	Producers   int    `json:"producers"`
	Consumers   int    `json:"consumers"`
	PerProducer int    `json:"per_producer"`
	Timeout     string `json:"timeout"`
}

// output is what -json prints.
type output struct {
	Queue    string           `json:"queue"`
	Capacity uint64           `json:"capacity"`
	Config   stress.Config    `json:"config"`
	Report   stress.Report    `json:"report"`
	Metrics  map[string]int64 `json:"metrics,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "lfqstress:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("lfqstress", flag.ContinueOnError)
	var (
		queue      = fs.String("queue", "mpmc", "queue variant: "+fmt.Sprint(stress.Names()))
		producers  = fs.Int("producers", 4, "producer goroutines")
		consumers  = fs.Int("consumers", 4, "consumer goroutines")
		n          = fs.Int("n", 1_000_000, "values per producer")
		capacity   = fs.Uint64("capacity", 1024, "ring capacity, rounded up to a power of two")
		timeout    = fs.Duration("timeout", time.Minute, "give up after this long")
		configPath = fs.String("config", "", "JSON file with queue, capacity, producers, consumers, per_producer and timeout")
		jsonOut    = fs.Bool("json", false, "print the report as JSON")
		verbose    = fs.Bool("v", false, "development logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *configPath != "" {
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

		fc, err := readConfig(*configPath)
		if err != nil {
			return err
		}
		if fc.Queue != "" && !set["queue"] {
			*queue = fc.Queue
		}
		if fc.Capacity != 0 && !set["capacity"] {
			*capacity = fc.Capacity
		}
		if fc.Producers != 0 && !set["producers"] {
			*producers = fc.Producers
		}
		if fc.Consumers != 0 && !set["consumers"] {
			*consumers = fc.Consumers
		}
		if fc.PerProducer != 0 && !set["n"] {
			*n = fc.PerProducer
		}
		if fc.Timeout != "" && !set["timeout"] {
			d, err := time.ParseDuration(fc.Timeout)
			if err != nil {
				return fmt.Errorf("config %s: timeout: %w", *configPath, err)
			}
			*timeout = d
		}
	}

	var (
		log *zap.Logger
		err error
	)
	if *verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	kind, err := stress.Lookup(*queue)
	if err != nil {
		return err
	}
	cfg := stress.Config{
		Producers:   *producers,
		Consumers:   *consumers,
		PerProducer: *n,
		Logger:      log.With(zap.String("queue", kind.Name)),
	}
	if err := kind.Check(cfg); err != nil {
		return err
	}
	if *capacity == 0 {
		return fmt.Errorf("%w: capacity must be positive", stress.ErrInvalidConfig)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	q := kind.New(*capacity)
	if src, ok := q.(lfqotel.Source); ok {
		reg, err := lfqotel.Register(provider.Meter("lfqstress"), kind.Name, src)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer reg.Unregister()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rep, runErr := stress.Run(ctx, cfg, q)

	metrics, err := collectMetrics(reader)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if *jsonOut {
		out := output{Queue: kind.Name, Capacity: *capacity, Config: cfg, Report: rep, Metrics: metrics}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		b, err := sonnet.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if _, err := fmt.Fprintf(stdout, "%s\n", b); err != nil {
			return err
		}
	} else {
		printReport(stdout, kind.Name, rep)
		printMetrics(stdout, metrics)
	}
	return runErr
}

// collectMetrics reads every int64 data point once, keyed by instrument
// name. Queues without instrumentation yield an empty map.
func collectMetrics(reader sdkmetric.Reader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		return nil, err
	}
	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			}
		}
	}
	return values, nil
}

func readConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("config: %w", err)
	}
	if err := sonnet.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("config %s: %w", path, err)
	}
	return fc, nil
}

func printReport(w io.Writer, queue string, rep stress.Report) {
	fmt.Fprintf(w, "queue:           %s\n", queue)
	fmt.Fprintf(w, "produced:        %d\n", rep.Produced)
	fmt.Fprintf(w, "consumed:        %d\n", rep.Consumed)
	fmt.Fprintf(w, "elapsed:         %s\n", rep.Elapsed)
	fmt.Fprintf(w, "ops/sec:         %.0f\n", rep.OpsPerSecond)
	fmt.Fprintf(w, "enqueue retries: %d\n", rep.EnqueueRetries)
	fmt.Fprintf(w, "dequeue retries: %d\n", rep.DequeueRetries)
	if st := rep.Stats; st != nil {
		printStats(w, *st)
	}
}

func printMetrics(w io.Writer, metrics map[string]int64) {
	for _, name := range slices.Sorted(maps.Keys(metrics)) {
		fmt.Fprintf(w, "%s: %d\n", name, metrics[name])
	}
}

func printStats(w io.Writer, st lfqueue.Stats) {
	fmt.Fprintf(w, "spins:           %d\n", st.Spins)
	fmt.Fprintf(w, "cas failures:    %d\n", st.CASFailures)
	fmt.Fprintf(w, "full:            %d\n", st.Full)
	fmt.Fprintf(w, "empty:           %d\n", st.Empty)
}
