// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/sitesage"
	"github.com/poiesic/sitesage/config"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/ingestion"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	maxRetries := &cli.IntFlag{
		Name:  "max-retries",
		Usage: "Retries for a failed answer generation (-1 keeps the configured value)",
		Value: -1,
	}

	return &cli.App{
		Name:  "sitesage",
		Usage: "Answer questions about a crawled website",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
				Value:   config.DefaultFile,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Storage path, overriding the configuration",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Storage backend (badger, sqlite), overriding the configuration",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Load scraped-site JSON, text, markdown or PDF files into the store",
				ArgsUsage: "PATH...",
				Action:    ingestCommand,
			},
			{
				Name:   "build",
				Usage:  "Chunk, embed and index every stored document, then save the index",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Show embedding progress",
						Value: true,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Print the passages closest to a question",
				ArgsUsage: "QUESTION",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of passages (0 uses top_k)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer one question",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags:     []cli.Flag{maxRetries},
			},
			{
				Name:   "chat",
				Usage:  "Answer questions interactively; type exit or quit to leave",
				Action: chatCommand,
				Flags: []cli.Flag{
					maxRetries,
					&cli.StringFlag{
						Name:  "watch",
						Usage: "Re-ingest and rebuild when files under this path change",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before a watched change triggers a rebuild",
						Value: sitesage.DefaultWatchDebounce,
					},
				},
			},
			{
				Name:      "export",
				Usage:     "Write the index artifact to a file",
				ArgsUsage: "FILE",
				Action:    exportCommand,
			},
			{
				Name:      "import",
				Usage:     "Load an index artifact from a file and save it",
				ArgsUsage: "FILE",
				Action:    importCommand,
			},
			{
				Name:   "stats",
				Usage:  "Print store and index metadata",
				Action: statsCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: configCommand,
			},
		},
	}
}

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if path := c.String("data"); path != "" {
		cfg.Storage.Path = path
	}
	if backend := c.String("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if c.IsSet("max-retries") && c.Int("max-retries") >= 0 {
		cfg.Generation.MaxRetries = c.Int("max-retries")
	}
	return cfg, nil
}

func openEngine(c *cli.Context, opts ...sitesage.EngineOption) (*sitesage.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return sitesage.NewEngine(cfg, opts...)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	total := 0
	for _, path := range c.Args().Slice() {
		n, err := engine.IngestPath(c.Context, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		total += n
	}
	fmt.Fprintf(c.App.Writer, "Ingested %d documents\n", total)
	return nil
}

func buildCommand(c *cli.Context) error {
	var opts []sitesage.EngineOption
	if c.Bool("progress") {
		opts = append(opts, sitesage.WithProgress(c.App.ErrWriter))
	}
	engine, err := openEngine(c, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Build(c.Context)
	if err != nil {
		return err
	}
	printBuildStats(c.App.Writer, stats)
	return nil
}

func printBuildStats(w io.Writer, stats *ingestion.Stats) {
	fmt.Fprintf(w, "Indexed %d passages from %d documents in %s (%d batches, %d splits)\n",
		stats.Passages, stats.Documents, stats.Elapsed.Round(time.Millisecond), stats.Batches, stats.Splits)
}

func queryCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Retrieve(c.Context, question, c.Int("k"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Found %d passages\n", result.Len())
	for i, hit := range result.Passages {
		fmt.Fprintf(c.App.Writer, "[%d] %.3f %s #%d\n%s\n\n", i+1, hit.Score, hit.Passage.Source, hit.Passage.Seq, hit.Passage.Text)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	return answer(c.Context, c.App.Writer, engine, question)
}

func answer(ctx context.Context, w io.Writer, engine *sitesage.Engine, question string) error {
	ans, err := engine.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, core.ErrGeneratorFailure) {
			return fmt.Errorf("could not produce an answer: %w", err)
		}
		return err
	}
	fmt.Fprintln(w, ans.Text)
	if pc := ans.Context; pc != nil {
		sources := make([]string, 0, len(pc.Passages))
		for i, p := range pc.Passages {
			sources = append(sources, fmt.Sprintf("[%d] %s", i+1, p.Passage.Source))
		}
		if len(sources) > 0 {
			fmt.Fprintf(w, "\nSources:\n%s\n", strings.Join(sources, "\n"))
		}
	}
	return nil
}

func chatCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if path := c.String("watch"); path != "" {
		watchDone := make(chan struct{})
		defer func() { <-watchDone }()
		go func() {
			defer close(watchDone)
			err := engine.Watch(ctx, path, c.Duration("debounce"), func(stats *ingestion.Stats, err error) {
				if err != nil {
					slog.Error("rebuild failed", "err", err)
					return
				}
				slog.Info("index rebuilt", "passages", stats.Passages, "documents", stats.Documents)
			})
			if err != nil {
				slog.Error("watch stopped", "path", path, "err", err)
			}
		}()
		defer cancel()
	}

	out := c.App.Writer
	fmt.Fprintln(out, "Ask a question about the site. Type exit or quit to leave.")
	scanner := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if q := strings.ToLower(question); q == "exit" || q == "quit" {
			break
		}
		if err := answer(ctx, out, engine, question); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func exportCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one output file is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	f, err := os.Create(c.Args().First())
	if err != nil {
		return err
	}
	if err := engine.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Exported %d entries to %s\n", engine.Index().Len(), c.Args().First())
	return nil
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one input file is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	if err := engine.Import(c.Context, f); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Imported %d entries from %s\n", engine.Index().Len(), c.Args().First())
	return nil
}

func statsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "documents:  %d\n", stats.Documents)
	fmt.Fprintf(w, "entries:    %d\n", stats.Entries)
	fmt.Fprintf(w, "dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(w, "embedder:   %s\n", stats.EmbedderVersion)
	if stats.BuildID != "" {
		fmt.Fprintf(w, "metric:     %s\n", stats.Metric)
		fmt.Fprintf(w, "kind:       %s\n", stats.Kind)
		fmt.Fprintf(w, "build id:   %s\n", stats.BuildID)
	}
	return nil
}

func configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return cfg.Write(c.App.Writer)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
