// Command shardgen writes a sample index of Latin filler documents, for
// local runs of shardreader and shardquery.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
)

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do
eiusmod tempor incididunt ut labore et dolore magnam aliquam quaerat voluptatem
enim ad minima veniam quis nostrum exercitationem ullam corporis suscipit
laboriosam nisi aliquid ex ea commodi consequatur autem vel eum iure
reprehenderit qui in voluptate velit esse quam nihil molestiae`)

func main() {
	out := flag.String("out", "./data/index", "index directory to write")
	numDocs := flag.Int("docs", 10000, "number of documents")
	numSegs := flag.Int("segments", 4, "number of segments")
	deleteRatio := flag.Float64("delete-ratio", 0.05, "fraction of documents to tombstone")
	codecName := flag.String("codec", "zstd", "payload codec: none or zstd")
	generation := flag.Uint64("generation", 1, "manifest generation")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	logger.Setup("info", "text")
	if err := run(*out, *numDocs, *numSegs, *deleteRatio, *codecName, *generation, *seed); err != nil {
		slog.Error("generating index failed", "error", err)
		os.Exit(1)
	}
}

func run(out string, numDocs, numSegs int, deleteRatio float64, codecName string, generation, seed uint64) error {
	if numSegs <= 0 {
		return fmt.Errorf("segments must be positive, got %d", numSegs)
	}
	codec, err := segment.ParseCodec(codecName)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	segs := make([]builder.Segment, numSegs)
	perSeg := (numDocs + numSegs - 1) / numSegs
	id := 0
	for s := range segs {
		segs[s].Name = fmt.Sprintf("seg-%04d", s)
		for local := 0; local < perSeg && id < numDocs; local++ {
			doc, err := builder.FromValues(map[string]any{
				"id":     id,
				"name":   phrase(rng, 1+rng.IntN(3)),
				"body":   phrase(rng, 8+rng.IntN(24)),
				"rating": rng.IntN(5) + 1,
				"draft":  rng.IntN(10) == 0,
			})
			if err != nil {
				return err
			}
			segs[s].Docs = append(segs[s].Docs, doc)
			if rng.Float64() < deleteRatio {
				segs[s].Deleted = append(segs[s].Deleted, uint32(local))
			}
			id++
		}
	}

	m, err := builder.Build(out, segs, builder.Options{Codec: codec, Generation: generation})
	if err != nil {
		return err
	}
	deleted := 0
	for _, s := range segs {
		deleted += len(s.Deleted)
	}
	slog.Info("index written",
		"dir", out,
		"generation", m.Generation,
		"segments", len(m.Segments),
		"documents", id,
		"deleted", deleted,
		"codec", codec,
	)
	return nil
}

func phrase(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[rng.IntN(len(words))]
	}
	return strings.Join(parts, " ")
}
