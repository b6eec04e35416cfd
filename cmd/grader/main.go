package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kyuchan/presentation-grader/internal/app"
	"github.com/kyuchan/presentation-grader/internal/config"
	"github.com/kyuchan/presentation-grader/internal/watch"
)

type flags struct {
	language string
	profile  string
	verbose  bool
}

func main() {
	var f flags
	root := &cobra.Command{
		Use:           "grader",
		Short:         "Transcribe presentation recordings and measure vocal stability",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.language, "language", "", "transcription language (default from STT_LANGUAGE)")
	root.PersistentFlags().StringVar(&f.profile, "profile", "", "prosody profile name from PROSODY_PROFILES_PATH")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "transcribe <audio>",
			Short: "Print transcript segments as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withServices(cmd.Context(), f, func(ctx context.Context, a *app.App) error {
					if err := a.STT.Init(ctx); err != nil {
						return err
					}
					segs, err := a.STT.Transcribe(ctx, args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), segs)
				})
			},
		},
		&cobra.Command{
			Use:   "analyze <audio>",
			Short: "Print transcript segments with jitter and shimmer as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withServices(cmd.Context(), f, func(ctx context.Context, a *app.App) error {
					segs, transcriptErr := a.Pipeline.Segments(ctx, args[0])
					if transcriptErr != "" {
						return fmt.Errorf("transcription failed: %s", transcriptErr)
					}
					return writeJSON(cmd.OutOrStdout(), segs)
				})
			},
		},
		&cobra.Command{
			Use:   "watch <dir>",
			Short: "Analyze recordings dropped into dir, writing <name>.segments.json beside each",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withServices(cmd.Context(), f, func(ctx context.Context, a *app.App) error {
					handle := func(ctx context.Context, path string) error {
						segs, transcriptErr := a.Pipeline.Segments(ctx, path)
						if transcriptErr != "" {
							return fmt.Errorf("transcription failed: %s", transcriptErr)
						}
						out, err := os.Create(outputPath(path))
						if err != nil {
							return err
						}
						defer out.Close()
						return writeJSON(out, segs)
					}
					done := func(path string) bool {
						_, err := os.Stat(outputPath(path))
						return err == nil
					}
					w := watch.New(args[0], handle, watch.WithLogger(a.Logger), watch.WithSkip(done))
					return w.Run(ctx)
				})
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withServices(ctx context.Context, f flags, run func(ctx context.Context, a *app.App) error) error {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f.language != "" {
		cfg.STT.Language = f.language
	}
	if f.profile != "" {
		cfg.Prosody.Profile = f.profile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(ctx, a)
}

// outputPath maps talk.wav to talk.segments.json.
func outputPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".segments.json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
