package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// LocalConfig configures a whisper CLI that prints its segments as JSON on
// stdout, such as whisper.cpp or a faster-whisper wrapper.
type LocalConfig struct {
	BinaryPath string
	ModelPath  string
	Threads    int
	Timeout    time.Duration // default 10 minutes
}

type LocalModel struct {
	cfg LocalConfig
}

type cliSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type cliOutput struct {
	Language string       `json:"language"`
	Segments []cliSegment `json:"segments"`
}

func (l *LocalModel) Name() string { return "local-whisper" }

func (l *LocalModel) Transcribe(ctx context.Context, req Request) ([]models.Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.cfg.BinaryPath, l.buildArgs(req)...)
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s", l.cfg.Timeout)
		}
		return nil, fmt.Errorf("subprocess failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out cliOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parse JSON output: %w", err)
	}

	segs := make([]models.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segs = append(segs, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return segs, nil
}

func (l *LocalModel) buildArgs(req Request) []string {
	var args []string
	if l.cfg.ModelPath != "" {
		args = append(args, "--model", l.cfg.ModelPath)
	}
	args = append(args, "--output-json")
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if l.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(l.cfg.Threads))
	}
	return append(args, req.FilePath)
}

// LocalLoader checks that the binary and model exist before handing out a
// LocalModel.
func LocalLoader(cfg LocalConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Minute
		}
		info, err := os.Stat(cfg.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("whisper binary not found at %q: %w", cfg.BinaryPath, err)
		}
		if info.Mode()&0o111 == 0 {
			return nil, fmt.Errorf("whisper binary at %q is not executable", cfg.BinaryPath)
		}
		if cfg.ModelPath != "" {
			if _, err := os.Stat(cfg.ModelPath); err != nil {
				return nil, fmt.Errorf("whisper model not found at %q: %w", cfg.ModelPath, err)
			}
		}
		return &LocalModel{cfg: cfg}, nil
	}
}
