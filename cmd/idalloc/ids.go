package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mybank/idalloc"
)

func newGenerateCmd() *cobra.Command {
	var (
		workerID     int64
		datacenterID int64
		epoch        int64
		count        int
		format       string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen", "g"},
		Short:   "Generate IDs",
		Example: `  idalloc generate --worker 3 --datacenter 1
  idalloc generate --count 1000 --format base62
  idalloc generate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			cfg := idalloc.DefaultConfig(workerID, datacenterID)
			cfg.Epoch = epoch
			gen, err := idalloc.NewWithConfig(cfg)
			if err != nil {
				return err
			}

			start := time.Now()
			ids, err := gen.GenerateBatch(cmd.Context(), count)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(cmd, gen, ids, elapsed)
			}
			for _, id := range ids {
				fmt.Fprintln(out, id.Format(strings.ToLower(format)))
			}
			if count > 100 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nGenerated %d IDs in %v (%.0f IDs/sec)\n",
					count, elapsed, float64(count)/elapsed.Seconds())
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&workerID, "worker", 0, fmt.Sprintf("Worker ID (0-%d)", idalloc.MaxWorkerID))
	cmd.Flags().Int64Var(&datacenterID, "datacenter", 0, fmt.Sprintf("Datacenter ID (0-%d)", idalloc.MaxDatacenterID))
	cmd.Flags().Int64Var(&epoch, "epoch", idalloc.Epoch, "Epoch in milliseconds since the Unix epoch")
	cmd.Flags().IntVar(&count, "count", 1, "Number of IDs to generate")
	cmd.Flags().StringVar(&format, "format", "decimal", "Output format: decimal, hex, base58, base62")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON with decoded fields")
	return cmd
}

func writeJSON(cmd *cobra.Command, gen *idalloc.Generator, ids []idalloc.ID, elapsed time.Duration) error {
	type idInfo struct {
		ID     idalloc.ID    `json:"id"`
		Base62 string        `json:"base62"`
		Hex    string        `json:"hex"`
		Time   time.Time     `json:"time"`
		Parts  idalloc.Parts `json:"parts"`
	}
	type output struct {
		Count        int      `json:"count"`
		WorkerID     int64    `json:"worker_id"`
		DatacenterID int64    `json:"datacenter_id"`
		Duration     string   `json:"duration"`
		IDs          []idInfo `json:"ids"`
	}

	infos := make([]idInfo, len(ids))
	for i, id := range ids {
		infos[i] = idInfo{
			ID:     id,
			Base62: id.Base62(),
			Hex:    id.Hex(),
			Time:   gen.Time(id).UTC(),
			Parts:  gen.Decode(id),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Count:        len(ids),
		WorkerID:     gen.WorkerID(),
		DatacenterID: gen.DatacenterID(),
		Duration:     elapsed.String(),
		IDs:          infos,
	})
}

// parseIDFlexible tries decimal, base62, base58 and hex in that order.
func parseIDFlexible(s string) (idalloc.ID, error) {
	parsers := []func(string) (idalloc.ID, error){
		idalloc.ParseString,
		idalloc.ParseBase62,
		idalloc.ParseBase58,
		idalloc.ParseHex,
	}
	for _, parse := range parsers {
		if id, err := parse(s); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unable to parse ID %q", s)
}

func newParseCmd() *cobra.Command {
	var epoch int64

	cmd := &cobra.Command{
		Use:     "parse <id>",
		Aliases: []string{"p"},
		Short:   "Decode an ID into its fields",
		Example: `  idalloc parse 1234567890123456789
  idalloc parse 1ly7vk2LjvA`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDFlexible(args[0])
			if err != nil {
				return err
			}
			p := id.Components()
			at := time.UnixMilli(p.UnixMilli(epoch)).UTC()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID: %s\n\n", id)
			fmt.Fprintf(out, "Components:\n")
			fmt.Fprintf(out, "  Timestamp:     %s (%d ms after epoch)\n", at.Format(time.RFC3339Nano), p.Timestamp)
			fmt.Fprintf(out, "  Datacenter ID: %d\n", p.DatacenterID)
			fmt.Fprintf(out, "  Worker ID:     %d\n", p.WorkerID)
			fmt.Fprintf(out, "  Sequence:      %d\n\n", p.Sequence)
			fmt.Fprintf(out, "Encodings:\n")
			fmt.Fprintf(out, "  Decimal: %s\n", id.String())
			fmt.Fprintf(out, "  Base62:  %s\n", id.Base62())
			fmt.Fprintf(out, "  Base58:  %s\n", id.Base58())
			fmt.Fprintf(out, "  Hex:     %s\n", id.Hex())
			return nil
		},
	}
	cmd.Flags().Int64Var(&epoch, "epoch", idalloc.Epoch, "Epoch in milliseconds since the Unix epoch")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "encode <id> <format>",
		Aliases: []string{"enc", "e"},
		Short:   "Convert an ID between decimal, hex, base58 and base62",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDFlexible(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Format(strings.ToLower(args[1])))
			return nil
		},
	}
}

func newBenchCmd() *cobra.Command {
	var (
		duration  time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:     "bench",
		Aliases: []string{"b"},
		Short:   "Measure single and batch generation throughput",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 1 {
				return fmt.Errorf("--batch must be at least 1")
			}
			gen, err := idalloc.New(0, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Single ID generation (%v):\n", duration)
			single := 0
			deadline := time.Now().Add(duration)
			for time.Now().Before(deadline) {
				if _, err := gen.NextID(); err != nil {
					return err
				}
				single++
			}
			fmt.Fprintf(out, "  %d IDs, %.0f IDs/sec\n", single, float64(single)/duration.Seconds())

			fmt.Fprintf(out, "Batch generation, %d per batch (%v):\n", batchSize, duration)
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			batched := 0
			for ctx.Err() == nil {
				ids, err := gen.GenerateBatch(ctx, batchSize)
				batched += len(ids)
				if err != nil && ctx.Err() == nil {
					return err
				}
			}
			fmt.Fprintf(out, "  %d IDs, %.0f IDs/sec\n", batched, float64(batched)/duration.Seconds())

			m := gen.GetMetrics()
			fmt.Fprintf(out, "Sequence exhausted %d times, waited %dus\n", m.SequenceExhausted, m.WaitTimeUs)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 3*time.Second, "Duration of each benchmark")
	cmd.Flags().IntVar(&batchSize, "batch", 100, "Batch size for the batch benchmark")
	return cmd
}
