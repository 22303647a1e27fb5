// Command shardquery inspects an index directory, or a running shard reader
// over RPC, from the command line.
//
// Usage:
//
//	shardquery count  -index ./data/index
//	shardquery query  -index ./data/index -field name -value magnam -k 10
//	shardquery query  -remote localhost:9100 -field name -value magnam
//	shardquery dump   -index ./data/index
//	shardquery stats  -index ./data/index
//	shardquery export -config configs/development.yaml -sink kafka|postgres|stdout
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/export"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/payload"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/server"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/postgres"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "count":
		err = runCount(ctx, args)
	case "query":
		err = runQuery(ctx, args)
	case "dump":
		err = runDump(ctx, args)
	case "stats":
		err = runStats(ctx, args)
	case "export":
		err = runExport(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "shardquery %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: shardquery <count|query|dump|stats|export> [flags]")
}

// target is either a local index or a remote reader.
type target struct {
	index  string
	remote string
	mmap   bool
}

func (t *target) bind(fs *flag.FlagSet) {
	fs.StringVar(&t.index, "index", "./data/index", "index directory")
	fs.StringVar(&t.remote, "remote", "", "RPC address of a running shard reader; overrides -index")
	fs.BoolVar(&t.mmap, "mmap", true, "memory-map segment files")
}

func (t *target) open() (*shard.Reader, error) {
	return shard.Open(t.index, shard.Options{MMap: t.mmap})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCount(ctx context.Context, args []string) error {
	var t target
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	t.bind(fs)
	fs.Parse(args)

	var count, maxDoc int
	if t.remote != "" {
		c, err := server.Dial(ctx, t.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		if count, err = c.DocumentCount(ctx); err != nil {
			return err
		}
		if maxDoc, err = c.MaxDoc(ctx); err != nil {
			return err
		}
	} else {
		r, err := t.open()
		if err != nil {
			return err
		}
		defer r.Close()
		if count, err = r.DocumentCount(); err != nil {
			return err
		}
		if maxDoc, err = r.MaxDoc(); err != nil {
			return err
		}
	}
	fmt.Printf("live documents: %d\nmax doc:        %d\n", count, maxDoc)
	return nil
}

type hitOut struct {
	DocID   int             `json:"doc_id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload"`
}

func runQuery(ctx context.Context, args []string) error {
	var t target
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	t.bind(fs)
	field := fs.String("field", "", "field to match")
	value := fs.String("value", "", "exact term to match")
	k := fs.Int("k", 0, "maximum hits; 0 uses the default")
	fs.Parse(args)

	var hits []shard.Hit
	if t.remote != "" {
		c, err := server.Dial(ctx, t.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		if hits, err = c.QueryTerm(ctx, *field, *value, *k); err != nil {
			return err
		}
	} else {
		r, err := t.open()
		if err != nil {
			return err
		}
		defer r.Close()
		if hits, err = r.QueryTerm(*field, *value, *k); err != nil {
			return err
		}
	}
	out := make([]hitOut, len(hits))
	for i, h := range hits {
		out[i] = hitOut{DocID: h.DocID, Score: h.Score, Payload: payload.JSON(h.Payload)}
	}
	return printJSON(out)
}

func runDump(ctx context.Context, args []string) error {
	var t target
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	t.bind(fs)
	fs.Parse(args)

	if t.remote != "" {
		c, err := server.Dial(ctx, t.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		payloads, err := c.AllDocumentPayloads(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, p := range payloads {
			if err := enc.Encode(payload.JSON(p)); err != nil {
				return err
			}
		}
		return nil
	}
	r, err := t.open()
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = export.New(config.ExportConfig{BatchSize: 1000, MaxAttempts: 1}, nil).
		Run(ctx, r, export.NewWriterSink(os.Stdout))
	return err
}

func runStats(ctx context.Context, args []string) error {
	var t target
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	t.bind(fs)
	fs.Parse(args)

	if t.remote != "" {
		c, err := server.Dial(ctx, t.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	}
	r, err := t.open()
	if err != nil {
		return err
	}
	defer r.Close()
	st, err := r.Stats()
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "configs/development.yaml", "path to config file")
	sinkName := fs.String("sink", "stdout", "kafka, postgres or stdout")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// stdout may carry the export itself
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	r, err := shard.Open(cfg.Reader.IndexDir, shard.Options{MMap: cfg.Reader.MMap})
	if err != nil {
		return err
	}
	defer r.Close()

	var sink export.Sink
	switch *sinkName {
	case "kafka":
		p := kafka.NewProducer(cfg.Kafka, cfg.Kafka.ExportTopic)
		defer p.Close()
		sink = export.NewKafkaSink(p)
	case "postgres":
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = export.NewPostgresSink(db, cfg.Postgres.ExportTable)
	case "stdout":
		sink = export.NewWriterSink(os.Stdout)
	default:
		return fmt.Errorf("unknown sink %q", *sinkName)
	}

	sum, err := export.New(cfg.Export, nil).Run(ctx, r, sink)
	if err != nil {
		return err
	}
	if *sinkName != "stdout" {
		return printJSON(sum)
	}
	return nil
}
