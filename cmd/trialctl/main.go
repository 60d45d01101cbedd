package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/config"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/prs"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/query"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/services"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "trialctl",
		Usage: "Operate the clinical trial explorer dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"EXPLORER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); defaults to the configured level",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest local protocol PDFs",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "batch-id",
						Usage: "Batch ID recorded with each status update (random when empty)",
					},
					&cli.IntFlag{
						Name:  "parallelism",
						Usage: "Number of files extracted concurrently (0 keeps the configured value)",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Report whether local files are already in the dataset",
				ArgsUsage: "FILE...",
				Action:    statusCommand,
			},
			{
				Name:   "export",
				Usage:  "Export the dataset table",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (csv, json, msgpack)",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (stdout when empty)",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run a read-only SQL SELECT against the trials table",
				ArgsUsage: "SQL",
				Action:    queryCommand,
			},
			{
				Name:      "show",
				Usage:     "Print the committed artifact for a fingerprint",
				ArgsUsage: "FINGERPRINT",
				Action:    showCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (json, xml)",
						Value:   "json",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about the ingested trials",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Chat mode (auto, sql, search)",
						Value: "auto",
					},
				},
			},
		},
	}
}

func setup(c *cli.Context) error {
	cfg, err := config.LoadFiles(c.String("config"), c.String("env-file"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

// withStore opens only the object store, so read-only commands run without any
// completion backend configured.
func withStore(c *cli.Context, fn func(store blob.Store) error) error {
	store, err := services.OpenStore(c.Context, loadedConfig(c))
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	return fn(store)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	cfg := loadedConfig(c)
	if n := c.Int("parallelism"); n > 0 {
		cfg.Ingest.Parallelism = n
	}

	records := make([]models.UploadRecord, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		records = append(records, ingest.NewUploadRecord(filepath.Base(path), content))
	}

	app, err := services.NewApp(c.Context, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	batchID := c.String("batch-id")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	outcomes := app.IngestBatch(c.Context, batchID, records)

	if err := writeJSON(c.App.Writer, models.IngestResponse{BatchID: batchID, Outcomes: outcomes}); err != nil {
		return err
	}
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files were not ingested", failed, len(outcomes)), 2)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	return withStore(c, func(store blob.Store) error {
		d, _, err := dataset.Load(c.Context, store)
		if err != nil {
			return err
		}
		for _, path := range c.Args().Slice() {
			fp, err := fingerprintFile(path)
			if err != nil {
				return err
			}
			state := "not ingested"
			switch {
			case d.Contains(fp):
				state = "ingested"
			default:
				if _, err := dataset.ReadArtifact(c.Context, store, fp); err == nil {
					state = "artifact committed, row pending"
				}
			}
			fmt.Fprintf(c.App.Writer, "%s  %s  %s\n", fp, filepath.Base(path), state)
		}
		return nil
	})
}

func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fp, err := ingest.FingerprintReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fp, nil
}

func exportCommand(c *cli.Context) error {
	return withStore(c, func(store blob.Store) error {
		table, err := dataset.NewReader(store).Table(c.Context)
		if err != nil {
			return err
		}

		var data []byte
		switch strings.ToLower(c.String("format")) {
		case "csv":
			data, err = table.CSV()
		case "json":
			data, err = json.MarshalIndent(table, "", "  ")
		case "msgpack":
			data, err = table.Msgpack()
		default:
			return fmt.Errorf("unknown format %q", c.String("format"))
		}
		if err != nil {
			return err
		}

		if out := c.String("out"); out != "" {
			return os.WriteFile(out, data, 0o644)
		}
		_, err = c.App.Writer.Write(data)
		return err
	})
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one SQL statement is required")
	}
	return withStore(c, func(store blob.Store) error {
		d, version, err := dataset.Load(c.Context, store)
		if err != nil {
			return err
		}
		engine, err := query.Open(loadedConfig(c).Chat.MaxRows)
		if err != nil {
			return err
		}
		defer engine.Close()
		if err := engine.Load(c.Context, d.Table(), strconv.FormatInt(int64(version), 10)); err != nil {
			return err
		}
		res, err := engine.Query(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		if err := writeResult(c.App.Writer, res); err != nil {
			return err
		}
		if res.Truncated {
			slog.Warn("Result truncated.", "rows", len(res.Rows))
		}
		return nil
	})
}

func writeResult(w io.Writer, res *query.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return err
	}
	record := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i, v := range row {
			record[i] = models.FormatScalar(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func showCommand(c *cli.Context) error {
	fp := strings.ToLower(c.Args().First())
	if !ingest.IsFingerprint(fp) {
		return fmt.Errorf("%q is not a fingerprint", c.Args().First())
	}
	format := strings.ToLower(c.String("format"))
	if format != "json" && format != "xml" {
		return fmt.Errorf("unknown format %q", c.String("format"))
	}
	return withStore(c, func(store blob.Store) error {
		art, err := dataset.ReadArtifact(c.Context, store, fp)
		if err != nil {
			return err
		}
		if format == "xml" {
			data, err := prs.Render(art.FormData)
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(data)
			return err
		}
		return writeJSON(c.App.Writer, models.ArtifactResponse{
			Fingerprint: art.SourceFingerprint,
			Summary:     art.Summary,
			FormData:    art.FormData,
		})
	})
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	app, err := services.NewApp(c.Context, loadedConfig(c))
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.Chat.Ask(c.Context, question, c.String("mode"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, resp)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
