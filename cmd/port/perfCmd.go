package port

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/s2sgate/cmd/util"
	"github.com/ValentinKolb/s2sgate/s2s/client"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/pool"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for Site-to-Site peers",
		Long:    "Runs send and receive transactions in parallel against the remote port. The receive test drains what the send tests delivered.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 1000
	perfRecordsPerTx     = 1
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. send-large,receive)"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How large the content for the send-large test should be (in KB)"))
	key = "records"
	perfTestCmd.Flags().Int(key, 1, util.WrapString("How many flow files a single send transaction carries"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfRecordsPerTx = max(viper.GetInt("records"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for Site-to-Site peers")
	util.PrintConfig("Configuration:", portConfig)
	fmt.Printf("Workers: %d, Records per transaction: %d\n\n", viper.GetInt("workers"), perfRecordsPerTx)

	p := pool.NewPool(portConfig.Endpoint, pool.Config{MaxIdle: portConfig.MaxIdle, MaxIdleTime: portConfig.MaxIdleTime}, func() *client.Client {
		return client.NewClient(client.Config{
			Endpoint:   portConfig.Endpoint,
			Timeout:    portConfig.Timeout,
			BatchCount: portConfig.BatchCount,
		}, streams)
	})
	defer p.Close()

	fmt.Println("starting tests...")
	results := make(map[string]testing.BenchmarkResult)

	for _, test := range []struct {
		name string
		size int
	}{
		{"send", 1024},
		{"send-large", perfLargeValueSizeKB * 1024},
	} {
		if shouldSkip(test.name) {
			continue
		}
		content := bytes.Repeat([]byte("x"), test.size)
		results[test.name] = testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(max(viper.GetInt("workers"), 1))
			b.SetBytes(int64(test.size * perfRecordsPerTx))
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if err := perfSend(p, content); err != nil {
						util.Logger.Warningf("(%s) - transaction failed: %v", test.name, err)
					}
				}
			})
		})
		printResult(test.name, results[test.name])
	}

	if !shouldSkip("receive") {
		results["receive"] = testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(max(viper.GetInt("workers"), 1))
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if _, err := perfReceive(p); err != nil {
						util.Logger.Warningf("(receive) - transaction failed: %v", err)
					}
				}
			})
		})
		printResult("receive", results["receive"])
	}

	fmt.Printf("\npool: %s\n", p.Stats())

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return errors.Wrap(err, "failed to export results to CSV")
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// perfSend runs one send transaction with perfRecordsPerTx copies of content
func perfSend(p *pool.Pool, content []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), portConfig.Timeout)
	defer cancel()

	c, err := p.Acquire(ctx, true)
	if err != nil {
		return err
	}
	defer p.Release(c)

	tx, err := c.Begin(ctx, common.Send)
	if err != nil {
		return err
	}
	for i := 0; i < perfRecordsPerTx; i++ {
		attrs := map[string]string{"filename": fmt.Sprintf("perf-%d", i)}
		if err := tx.Send(attrs, uint64(len(content)), bytes.NewReader(content)); err != nil {
			return err
		}
	}
	if err := tx.Confirm(); err != nil {
		return err
	}
	return tx.Complete()
}

// perfReceive runs one receive transaction and returns the number of records
func perfReceive(p *pool.Pool) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), portConfig.Timeout)
	defer cancel()

	c, err := p.Acquire(ctx, true)
	if err != nil {
		return 0, err
	}
	defer p.Release(c)

	tx, err := c.Begin(ctx, common.Receive)
	if err != nil {
		return 0, err
	}
	for {
		rec, err := tx.Receive()
		if err != nil {
			return 0, err
		}
		if rec == nil {
			break
		}
		if _, err := io.Copy(io.Discard, rec.Content); err != nil {
			return 0, err
		}
	}
	if err := tx.Confirm(); err != nil {
		return 0, err
	}
	return tx.Records(), tx.Complete()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f tx/sec", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if result.Bytes > 0 {
		fmt.Printf("\t%.2f MB/s", float64(result.Bytes)*opsPerSec/1e6)
	}
	fmt.Println()
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return errors.Wrap(err, "failed to create CSV file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "TxPerSec", "BytesPerOp",
		"Endpoint", "Transport", "Timeout", "Workers", "RecordsPerTx", "LargeValueSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			strconv.FormatInt(result.Bytes, 10),
			portConfig.Endpoint.String(),
			portConfig.Transport.Name,
			portConfig.Timeout.String(),
			strconv.Itoa(viper.GetInt("workers")),
			strconv.Itoa(perfRecordsPerTx),
			strconv.Itoa(perfLargeValueSizeKB),
		}

		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write row for test %s", test)
		}
	}

	return nil
}
