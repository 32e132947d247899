package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/analysis"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/config"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/perception"
	"github.com/fiapx/fiapx-nonverbal-service/pkg/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const usage = "Usage: analyze <video_path> <scenario> <duration>"

type options struct {
	progress       bool
	perceptionCmd  string
	perceptionArgs []string
	timeout        time.Duration
	frameTimeout   time.Duration
	ffmpegPath     string
	ffprobePath    string
	logLevel       string
	tempDir        string
}

// run executes the command and returns the process exit code. Every outcome
// is reported as a single JSON document on stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		writeJSON(stdout, errorOutput{Error: fmt.Sprintf("load config: %v", err)})
		return 1
	}

	cmd := newRootCmd(cfg, stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		writeJSON(stdout, errorOutput{Error: errorMessage(err)})
		return 1
	}
	return 0
}

func newRootCmd(cfg *config.Config, stdout, stderr io.Writer) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:           "analyze <video> <scenario> <duration>",
		Short:         "Score the nonverbal communication in a practice video",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 3 {
				return errors.New(usage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd.Context(), opts, args, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.progress, "progress", false, "draw a progress bar on stderr")
	f.StringVar(&opts.perceptionCmd, "perception-cmd", cfg.PerceptionCommand, "perception worker executable")
	f.StringSliceVar(&opts.perceptionArgs, "perception-args", cfg.PerceptionArgs, "perception worker arguments")
	f.DurationVar(&opts.timeout, "perception-timeout", cfg.PerceptionTimeout, "per-call perception timeout (0 disables it)")
	f.StringVar(&opts.ffmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary")
	f.StringVar(&opts.ffprobePath, "ffprobe", cfg.FFprobePath, "ffprobe binary")
	f.DurationVar(&opts.frameTimeout, "frame-timeout", cfg.FFmpegFrameTimeout, "per-frame decode timeout (0 disables it)")
	f.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "log level (logs go to stderr)")
	f.StringVar(&opts.tempDir, "temp-dir", os.TempDir(), "directory for decoded video payloads")

	return cmd
}

func analyze(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) error {
	scenario := args[1]
	duration, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[2], err)
	}
	if opts.timeout < 0 {
		return fmt.Errorf("perception timeout must not be negative, got %s", opts.timeout)
	}

	log, err := logger.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	path, cleanup, err := materializeVideo(args[0], opts.tempDir)
	if err != nil {
		return &payloadError{err: err}
	}
	defer cleanup()

	log.Debug("analyzing video",
		zap.String("path", path),
		zap.String("scenario", scenario),
		zap.Float64("duration", duration),
	)

	var pipelineOpts []analysis.Option
	if opts.progress {
		pipelineOpts = append(pipelineOpts, analysis.WithProgress(newProgress(stderr)))
	}

	decoder := ffmpeg.NewDecoder(opts.ffmpegPath, opts.ffprobePath, log, ffmpeg.WithFrameTimeout(opts.frameTimeout))
	workers := perception.NewWorkerPerception(perception.Config{
		Command: opts.perceptionCmd,
		Args:    opts.perceptionArgs,
		Timeout: opts.timeout,
	}, log)

	result := analysis.NewPipeline(decoder, workers, log, pipelineOpts...).Run(ctx, path)
	writeJSON(stdout, result)
	return nil
}

// newProgress draws the bar once the sample count is known.
func newProgress(w io.Writer) analysis.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Analyzing frames"),
				progressbar.OptionSetWriter(w),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
			)
		}
		_ = bar.Set(done)
	}
}

// payloadError marks an inline video argument that could not be decoded.
type payloadError struct {
	err error
}

func (e *payloadError) Error() string { return "decode video data: " + e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

// errorMessage is the text reported in the {"error": ...} document.
func errorMessage(err error) string {
	var pe *payloadError
	if errors.As(err, &pe) {
		return fmt.Sprintf("Failed to decode video data: %v", pe.err)
	}
	return err.Error()
}

type errorOutput struct {
	Error string `json:"error"`
}

func writeJSON(w io.Writer, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, "{\"error\": %q}\n", err.Error())
	}
}
