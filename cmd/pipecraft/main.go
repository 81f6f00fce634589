// Command pipecraft demonstrates the framework end-to-end: a word-count
// job built from a hash reductor and an external sort, and a three-peer
// shuffler exercising the distributed wire protocol.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipecraft",
	Short: "Composable batch dataflow pipeline demos",
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rootCmd.AddCommand(wordcountCmd)
	rootCmd.AddCommand(shuffleDemoCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("[pipecraft] command failed")
	}
}
