package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
)

// whisperCpp runs the whisper.cpp CLI on a 16 kHz mono WAV converted by ffmpeg
type whisperCpp struct {
	bin       string
	ffmpeg    string
	model     string
	modelFile string
	language  string
	runner    Runner
}

func newWhisperCpp(model string, s Settings) Backend {
	bin := s.WhisperCppBin
	if bin == "" {
		bin = "whisper-cli"
	}
	ffmpeg := s.FFmpegBin
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &whisperCpp{
		bin:       bin,
		ffmpeg:    ffmpeg,
		model:     model,
		modelFile: filepath.Join(s.ModelsDir, "ggml-"+model+".bin"),
		language:  s.Language,
		runner:    s.Runner,
	}
}

func (w *whisperCpp) Name() string  { return CompactLocal }
func (w *whisperCpp) Model() string { return w.model }

func (w *whisperCpp) Load(ctx context.Context) error {
	for _, bin := range []string{w.bin, w.ffmpeg} {
		if _, err := w.runner.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, bin, err)
		}
	}
	if _, err := os.Stat(w.modelFile); err != nil {
		return fmt.Errorf("%w: model file: %v", ErrBackendUnavailable, err)
	}
	return nil
}

type whisperCppJSON struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *whisperCpp) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	workDir, err := os.MkdirTemp("", "irdin-whispercpp-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "audio.wav")
	if _, err := w.runner.Run(ctx, w.ffmpeg,
		"-nostdin", "-loglevel", "error", "-y",
		"-i", audioPath,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		wavPath); err != nil {
		return nil, fmt.Errorf("convert to wav: %w", err)
	}

	prefix := filepath.Join(workDir, "out")
	if _, err := w.runner.Run(ctx, w.bin,
		"-m", w.modelFile,
		"-f", wavPath,
		"-l", w.language,
		"-oj", "-of", prefix); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(prefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper.cpp output: %w", err)
	}
	res, err := parseWhisperCppJSON(data)
	if err != nil {
		return nil, err
	}

	if d, err := wavDuration(wavPath); err == nil {
		res.Duration = d
	}
	return res, nil
}

func parseWhisperCppJSON(data []byte) (*Result, error) {
	var out whisperCppJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode whisper.cpp json: %w", err)
	}

	res := &Result{Segments: make([]Segment, 0, len(out.Transcription))}
	for _, t := range out.Transcription {
		res.Segments = append(res.Segments, Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  t.Text,
		})
	}
	if n := len(res.Segments); n > 0 {
		res.Duration = seconds(res.Segments[n-1].End)
	}
	return res, nil
}

func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("invalid WAV file %s", path)
	}
	return decoder.Duration()
}
