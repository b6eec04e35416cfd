package stt

import (
	"fmt"
	"time"

	"github.com/kyuchan/presentation-grader/internal/config"
)

// LoaderFromConfig picks the recognition backend named by cfg.Backend.
func LoaderFromConfig(cfg config.STTConfig) (Loader, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Backend {
	case "openai":
		return OpenAILoader(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: timeout,
		}), nil
	case "whisper-server":
		return WhisperServerLoader(cfg.ServerBaseURL, cfg.ServerModel, timeout), nil
	case "local":
		return LocalLoader(LocalConfig{
			BinaryPath: cfg.LocalBinPath,
			ModelPath:  cfg.LocalModelPath,
			Threads:    cfg.LocalThreads,
			Timeout:    timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.Backend)
	}
}
