package oplog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tkv-io/tKV/cmd/util"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for tKV servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNamespace      = "__test.perf"
	perfLargeDocSizeKB = 100
	perfNumThreads     = 10
	perfNumOps         = 1000
	perfKeySpread      = 100
	perfSkip           = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,find)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per benchmark"))
	key = "large-doc-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the payload for the insert-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different document ids to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeDocSizeKB = viper.GetInt("large-doc-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfNumOps = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for tKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Operations per benchmark: %d\n", perfNumOps)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]metrics.Timer)

	insertTimer := runBenchmark("insert", func(i int) error {
		doc, _ := json.Marshal(map[string]any{"_id": perfID(i), "payload": "test"})
		_, err := rpcClient.Insert(perfNamespace, doc)
		return err
	})
	results["insert"] = insertTimer
	printResult("insert", insertTimer)
	cleanup()

	largePayload := strings.Repeat("x", perfLargeDocSizeKB*1024)
	insertLargeTimer := runBenchmark("insert-large", func(i int) error {
		doc, _ := json.Marshal(map[string]any{"_id": perfID(i), "payload": largePayload})
		_, err := rpcClient.Upsert(perfNamespace, doc)
		return err
	})
	results["insert-large"] = insertLargeTimer
	printResult("insert-large", insertLargeTimer)
	cleanup()

	// seed documents for the read and delete benchmarks
	seed := func(name string) {
		for i := 0; i < perfKeySpread; i++ {
			doc, _ := json.Marshal(map[string]any{"_id": perfID(i), "payload": "test"})
			if _, err := rpcClient.Upsert(perfNamespace, doc); err != nil {
				log.Printf("(%s) - error seeding document: %v\n", name, err)
			}
		}
	}

	seed("find")
	findTimer := runBenchmark("find", func(i int) error {
		key, _ := json.Marshal(perfID(i))
		_, _, err := rpcClient.Find(perfNamespace, key, 0)
		return err
	})
	results["find"] = findTimer
	printResult("find", findTimer)
	cleanup()

	seed("delete")
	deleteTimer := runBenchmark("delete", func(i int) error {
		key, _ := json.Marshal(perfID(i))
		_, err := rpcClient.Delete(perfNamespace, key)
		return err
	})
	results["delete"] = deleteTimer
	printResult("delete", deleteTimer)
	cleanup()

	// Save results as CSV if requested
	if path := viper.GetString("csv"); path != "" {
		if err := saveCSV(path, results); err != nil {
			return err
		}
		fmt.Printf("results saved to %s\n", path)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// runBenchmark runs op perfNumOps times across perfNumThreads goroutines
// and records the latency of every call.
func runBenchmark(name string, op func(i int) error) metrics.Timer {
	timer := metrics.NewTimer()

	if shouldSkip(name) {
		return timer
	}

	var wg sync.WaitGroup
	opsPerThread := perfNumOps / perfNumThreads

	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := 0; i < opsPerThread; i++ {
				n := thread*opsPerThread + i
				start := time.Now()
				if err := op(n); err != nil {
					log.Printf("(%s) - error: %v\n", name, err)
				}
				timer.UpdateSince(start)
			}
		}(t)
	}
	wg.Wait()

	return timer
}

// perfID spreads the operations over perfKeySpread document ids
func perfID(i int) string {
	return fmt.Sprintf("doc-%d", i%perfKeySpread)
}

// cleanup drops the benchmark collection between tests
func cleanup() {
	if _, _, err := rpcClient.DropCollection(perfNamespace, util.GetTerm()); err != nil {
		log.Printf("(cleanup) - error dropping collection: %v\n", err)
	}
}

func shouldSkip(name string) bool {
	for _, skip := range perfSkip {
		if strings.TrimSpace(skip) == name {
			fmt.Printf("%-20s\tskipped\n", name)
			return true
		}
	}
	return false
}

// printResult prints the result of a single benchmark
func printResult(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		return
	}

	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

	fmt.Printf("%-20s\t%d ops\t%.2f ops/sec\tmean: %s\tp50: %s\tp95: %s\tp99: %s\n",
		test,
		timer.Count(),
		timer.RateMean(),
		time.Duration(int64(timer.Mean())),
		time.Duration(int64(ps[0])),
		time.Duration(int64(ps[1])),
		time.Duration(int64(ps[2])),
	)
}

// saveCSV writes the benchmark results to a CSV file
func saveCSV(path string, results map[string]metrics.Timer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "ops_per_sec", "mean_ns", "p50_ns", "p95_ns", "p99_ns"}); err != nil {
		return err
	}

	for name, timer := range results {
		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
		record := []string{
			name,
			strconv.FormatInt(timer.Count(), 10),
			strconv.FormatFloat(timer.RateMean(), 'f', 2, 64),
			strconv.FormatFloat(timer.Mean(), 'f', 0, 64),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	return nil
}
