package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/pipecraft/codec/gobcodec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/reduce"
	"github.com/gosuda/pipecraft/shard"
	"github.com/gosuda/pipecraft/source"
)

var wordcountPartitions int

var wordcountCmd = &cobra.Command{
	Use:   "wordcount [file]",
	Short: "Count word occurrences via HashReductor, sorted by count descending",
	Args:  cobra.ExactArgs(1),
	RunE:  runWordcount,
}

func init() {
	wordcountCmd.Flags().IntVar(&wordcountPartitions, "partitions", 4, "number of hash partitions")
}

type wordCount struct {
	Word  string
	Count int
}

func runWordcount(cmd *cobra.Command, args []string) error {
	words, err := readWords(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	log.Info().Int("words", len(words)).Str("file", args[0]).Msg("[wordcount] tokenized input")

	upstream := source.Collection(words)
	strFactory := gobcodec.New[string]()

	cfg := reduce.Config[string, string, int, wordCount]{
		Discriminator: func(w string) string { return w },
		Init:          func(k string) int { return 0 },
		Fold:          func(acc int, _ string) int { return acc + 1 },
		Finalize:      func(k string, acc int) wordCount { return wordCount{Word: k, Count: acc} },
	}

	reductor := reduce.NewHashReductor(upstream, cfg, strFactory, func(s string) []byte { return []byte(s) }, wordcountPartitions, "")

	wcFactory := gobcodec.New[wordCount]()
	cmp := func(a, b wordCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.Word < b.Word {
			return -1
		}
		if a.Word > b.Word {
			return 1
		}
		return 0
	}
	sorted := shard.NewExternalSort[wordCount](reductor, cmp, 10000, shard.FileEngine(wcFactory), "")

	if err := sorted.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer sorted.Close()

	var out []wordCount
	for {
		v, ok, err := sorted.Next()
		if err != nil {
			return fmt.Errorf("next: %w", err)
		}
		if !ok {
			break
		}
		out = append(out, v)
	}

	for _, wc := range out {
		fmt.Printf("%-20s %d\n", wc.Word, wc.Count)
	}
	log.Info().Int("distinct_words", len(out)).Msg("[wordcount] done")
	return nil
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		w := strings.ToLower(strings.Trim(sc.Text(), ".,!?;:\"'()"))
		if w != "" {
			words = append(words, w)
		}
	}
	return words, sc.Err()
}

var _ pipe.Pull[wordCount] = (*shard.ExternalSort[wordCount])(nil)
