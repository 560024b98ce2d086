// Command artshield submits artworks to the protection service and follows
// their progress until the protected variants are ready.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/artshield/artshield/internal/app/reconcile"
	"github.com/artshield/artshield/internal/config"
	"github.com/artshield/artshield/internal/config/fileloader"
	"github.com/artshield/artshield/internal/domain/protection"
	"github.com/artshield/artshield/internal/infra/client"
	"github.com/artshield/artshield/pkg/common/logger"
	"github.com/artshield/artshield/pkg/common/otel"
)

const serviceName = "artshield"

func main() {
	_, _ = maxprocs.Set()

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	log := logger.NewWithEvents(os.Stderr, logger.LevelInfo, serviceName, traceIDFn, logEvents)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	flag.Parse()

	v := viper.New()
	v.SetEnvPrefix("ARTSHIELD")
	v.AutomaticEnv()

	cfg, err := loadConfig(ctx, v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceName,
		ExporterEndpoint: v.GetString("otel_endpoint"),
		Probability:      1,
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer telemetryTeardown(context.Background())
	tracer := tp.Tracer(serviceName)

	c, err := client.New(cfg, log, tracer)
	if err != nil {
		return err
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "protect":
		return cmdProtect(ctx, log, c, args[1:])
	case "status":
		return cmdStatus(ctx, c, args[1:])
	case "download":
		return cmdDownload(ctx, c, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// loadConfig layers defaults, an optional config file and environment
// variables, lowest priority first.
func loadConfig(ctx context.Context, v *viper.Viper) (config.Config, error) {
	cfg := config.Default()

	if path := v.GetString("config"); path != "" {
		loaded, err := fileloader.NewFileLoader(path).Load(ctx)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}

	cfg = cfg.Merge(config.Config{
		Endpoint: config.EndpointConfig{
			BaseURL: v.GetString("base_url"),
			Token:   v.GetString("token"),
		},
	})

	return cfg, nil
}

func cmdProtect(ctx context.Context, log *logger.Logger, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("protect", flag.ContinueOnError)
	artist := fs.String("artist", "", "artist name")
	title := fs.String("title", "", "artwork title")
	out := fs.String("out", "", "path to save the protected variant (default: <file>.protected)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: artshield protect -artist NAME -title TITLE FILE")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artwork: %w", err)
	}
	defer f.Close()

	sub, err := c.Submit(ctx, client.SubmitParams{
		ArtistName:   *artist,
		ArtworkTitle: *title,
		FileName:     filepath.Base(path),
		File:         f,
	}, func(percent int) {
		fmt.Fprintf(os.Stderr, "\ruploading... %3d%%", percent)
		if percent == 100 {
			fmt.Fprintln(os.Stderr)
		}
	})
	if err != nil {
		return fmt.Errorf("submitting artwork: %w", err)
	}

	if sub.Outcome == client.OutcomeExists {
		log.Info(ctx, "artwork already protected", "job_id", sub.JobID)
		fmt.Printf("already protected, job %s\n", sub.JobID)
		return nil
	}

	log.Info(ctx, "job submitted", "job_id", sub.JobID, "status", sub.Status)

	obs := client.StepObserverFunc(func(t reconcile.Transition) {
		fmt.Printf("%-12s %s\n", t.Step, t.State)
	})

	res, err := c.PollUntilComplete(ctx, sub.JobID, obs)
	if err != nil {
		var timeout protection.PollingTimeoutError
		if errors.As(err, &timeout) {
			return fmt.Errorf("job %s still running after %d polls, retry later with: artshield status %s",
				sub.JobID, timeout.Attempts, sub.JobID)
		}
		return err
	}

	dst := *out
	if dst == "" {
		dst = path + ".protected"
	}
	if err := saveVariant(ctx, c, res.JobID, client.VariantProtected, dst); err != nil {
		return err
	}
	fmt.Printf("protected variant saved to %s\n", dst)
	return nil
}

func cmdStatus(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: artshield status JOB_ID")
	}

	raw, err := c.GetStatus(ctx, args[0])
	if err != nil {
		return err
	}

	snap := protection.NewNormalizer(nil).Normalize(raw)
	fmt.Printf("job %s: %s (%d%%)\n", args[0], snap.JobStatus(), snap.Percentage())
	if step, ok := snap.ActiveStep(); ok {
		fmt.Printf("active step: %s\n", step)
	}
	if msg := snap.ErrorMessage(); msg != "" {
		fmt.Printf("error: %s\n", msg)
	}
	return nil
}

func cmdDownload(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	out := fs.String("out", "", "output path (default: JOB_ID.VARIANT)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: artshield download JOB_ID {original|protected|mask}")
	}

	jobID := fs.Arg(0)
	variant, err := client.ParseVariant(fs.Arg(1))
	if err != nil {
		return err
	}

	dst := *out
	if dst == "" {
		dst = fmt.Sprintf("%s.%s", jobID, variant)
	}
	if err := saveVariant(ctx, c, jobID, variant, dst); err != nil {
		return err
	}
	fmt.Printf("saved %s\n", dst)
	return nil
}

func saveVariant(ctx context.Context, c *client.Client, jobID string, variant client.Variant, dst string) error {
	body, err := c.DownloadVariant(ctx, jobID, variant)
	if err != nil {
		return fmt.Errorf("downloading %s variant: %w", variant, err)
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return f.Close()
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: artshield COMMAND [flags]

commands:
  protect   submit an artwork and follow it to completion
  status    print the current status of a job
  download  fetch one variant of a completed job

environment:
  ARTSHIELD_BASE_URL       protection service endpoint (required)
  ARTSHIELD_TOKEN          bearer token
  ARTSHIELD_CONFIG         path to a YAML config file
  ARTSHIELD_OTEL_ENDPOINT  OTLP trace exporter endpoint`)
}
