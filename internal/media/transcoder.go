package media

import (
	"fmt"
	"os/exec"

	"github.com/lanikai/strawberry/internal/errs"
)

// Transcoder wraps an external ffmpeg process that produces an Annex-B
// H.264 elementary stream on stdout and an Ogg/Opus stream on stderr from a
// single input, per the original source's
// create_av_sources_from_single_process. Spawning ffmpeg this way -- rather
// than modeling it as a registered Source -- keeps transcoder invocation a
// CLI-front-end concern, consistent with the spec's Non-goal of treating it
// as external; registry.go's OpenSource is for sources that are already
// elementary streams (files, pipes), not processes that must be launched.
type Transcoder struct {
	cmd   *exec.Cmd
	Video *H264Source
	Audio *OpusSource
}

// TranscoderConfig mirrors the original source's
// create_av_sources_from_single_process keyword arguments that this client
// exercises; crf and subtitle burn-in are left to the original's defaults
// and are not surfaced here.
type TranscoderConfig struct {
	Width, Height int
	Framerate     int
	AudioBitrate  int // kbit/s, passed to libopus's -b:a
}

// NewFFmpegTranscoder starts ffmpeg against source (a file path, device, or
// URL ffmpeg understands) and returns a Transcoder whose Video and Audio
// sources are already running. Callers must Close the Transcoder once both
// sources report end-of-stream.
func NewFFmpegTranscoder(source string, cfg TranscoderConfig) (*Transcoder, error) {
	args := []string{"-hide_banner", "-loglevel", "quiet", "-i", source,
		"-r", fmt.Sprint(cfg.Framerate),
		"-f", "h264",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-preset", "ultrafast",
		"-profile:v", "baseline",
		"-bsf:v", "h264_metadata=aud=insert",
		"pipe:1",
		"-map_metadata", "-1",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-f", "opus",
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", fmt.Sprintf("%dk", cfg.AudioBitrate),
		"pipe:2",
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Wrap(errs.SourceError, err, "opening ffmpeg stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Wrap(errs.SourceError, err, "opening ffmpeg stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.SourceError, err, "starting ffmpeg")
	}

	return &Transcoder{
		cmd:   cmd,
		Video: NewH264Source(stdout),
		Audio: NewOpusSource(stderr),
	}, nil
}

// Close waits for ffmpeg to exit after closing both of its output pipes.
// Safe to call once both Video.Err() and Audio.Err() report end-of-stream.
func (t *Transcoder) Close() error {
	t.Video.Close()
	t.Audio.Close()
	return t.cmd.Wait()
}
