package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("audio",
	fx.Provide(NewProber),
)

var ErrUnreadableAudio = errors.New("unreadable_audio")

// Info describes a probed audio file.
type Info struct {
	DurationSeconds float64
	Format          string
}

// Prober extracts stream metadata from an audio file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

type Params struct {
	fx.In

	Log *zap.Logger
}

type ffprobe struct {
	log     *zap.Logger
	binary  string
	timeout time.Duration
}

func NewProber(p Params) Prober {
	return &ffprobe{
		log:     p.Log.Named("audio.prober"),
		binary:  "ffprobe",
		timeout: 15 * time.Second,
	}
}

type probeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

func (f *ffprobe) Probe(ctx context.Context, path string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		f.log.Warn("probe failed", zap.String("path", path), zap.Error(err))
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadableAudio, err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadableAudio, err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return Info{}, fmt.Errorf("%w: no duration", ErrUnreadableAudio)
	}

	return Info{
		DurationSeconds: duration,
		Format:          result.Format.FormatName,
	}, nil
}
