// Command statsagg aggregates kill-event CSV files into a JSON summary
// (§9 supplemented feature, ported from the original tp1 batch job).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ridering/internal/statsagg"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

type cliArgs struct {
	Positional struct {
		InputPath      string `positional-arg-name:"input-path" required:"yes"`
		NumThreads     int    `positional-arg-name:"num-threads" required:"yes"`
		OutputFileName string `positional-arg-name:"output-file-name" required:"yes"`
	} `positional-args:"yes"`
}

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var args cliArgs
	if _, err := flags.Parse(&args); err != nil {
		os.Exit(1)
	}
	if args.Positional.NumThreads < 1 {
		fmt.Fprintln(os.Stderr, "statsagg: num-threads must be a positive integer")
		os.Exit(1)
	}

	summary, err := statsagg.ProcessDirectory(args.Positional.InputPath, args.Positional.NumThreads, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "statsagg:", err)
		os.Exit(1)
	}

	f, err := os.Create(args.Positional.OutputFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "statsagg: create output file:", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(os.Stderr, "statsagg: write output file:", err)
		os.Exit(1)
	}
	fmt.Println("File created successfully.")
}
