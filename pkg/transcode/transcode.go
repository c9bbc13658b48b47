package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VoiceMimeType is the content type of ToVoice output.
const VoiceMimeType = "audio/ogg"

var (
	ErrTranscode  = errors.New("audio transcode failed")
	ErrEmptyInput = errors.New("audio input is empty")
)

// Config holds the ffmpeg settings.
type Config struct {
	FFmpegPath string        `env:"TRANSCODE_FFMPEG_PATH" envDefault:"ffmpeg"`
	Bitrate    string        `env:"TRANSCODE_BITRATE" envDefault:"16k"`
	Timeout    time.Duration `env:"TRANSCODE_TIMEOUT" envDefault:"2m"`
}

// FFmpeg converts audio into Opus voice notes with an ffmpeg-go command.
type FFmpeg struct {
	binary  string
	bitrate string
	timeout time.Duration
}

// New creates a transcoder from cfg. Empty fields use the defaults.
func New(cfg Config) *FFmpeg {
	f := &FFmpeg{binary: cfg.FFmpegPath, bitrate: cfg.Bitrate, timeout: cfg.Timeout}
	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	if f.bitrate == "" {
		f.bitrate = "16k"
	}
	if f.timeout <= 0 {
		f.timeout = 2 * time.Minute
	}
	return f
}

// ToVoice re-encodes data as Opus in an Ogg container at the configured
// bitrate. name is only used to keep the input extension for probing.
func (f *FFmpeg) ToVoice(ctx context.Context, data []byte, name string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	dir, err := os.MkdirTemp("", "transcode-*")
	if err != nil {
		return nil, errors.Join(ErrTranscode, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	in := filepath.Join(dir, "input"+filepath.Ext(filepath.Base(name)))
	out := filepath.Join(dir, "voice.ogg")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, errors.Join(ErrTranscode, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{"c:a": "libopus", "b:a": f.bitrate, "f": "ogg"}).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		SetFfmpegPath(f.binary).
		WithErrorOutput(&stderr).
		Compile()
	if err := run(ctx, cmd); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrTranscode, err, msg)
	}

	voice, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.Join(ErrTranscode, err)
	}
	if len(voice) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrTranscode)
	}
	return voice, nil
}

// run waits for cmd and kills it when ctx ends first.
func run(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}
