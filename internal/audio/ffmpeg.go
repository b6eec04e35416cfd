package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpegPath is the binary used by ConvertToWAV.
var FFmpegPath = "ffmpeg"

// ConvertToWAV extracts a mono 16 kHz WAV track from any container ffmpeg
// understands and returns its path inside outDir.
func ConvertToWAV(ctx context.Context, inputPath, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(outDir, base+"_16k.wav")

	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-y", "-i", inputPath,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
