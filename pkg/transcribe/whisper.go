package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// whisperJSON is the output file written by the openai-whisper style CLIs
// (whisper-ctranslate2 and mlx_whisper share it)
type whisperJSON struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func parseWhisperJSON(data []byte) (*Result, error) {
	var out whisperJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode transcript json: %w", err)
	}

	res := &Result{Segments: make([]Segment, 0, len(out.Segments))}
	for _, s := range out.Segments {
		res.Segments = append(res.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	if n := len(res.Segments); n > 0 {
		res.Duration = seconds(res.Segments[n-1].End)
	}
	return res, nil
}

// cliWhisper drives a whisper CLI that writes <stem>.json into an output directory
type cliWhisper struct {
	name   string
	bin    string
	model  string
	runner Runner
	args   func(audioPath, outDir string) []string
}

func (w *cliWhisper) Name() string  { return w.name }
func (w *cliWhisper) Model() string { return w.model }

func (w *cliWhisper) Load(ctx context.Context) error {
	if _, err := w.runner.LookPath(w.bin); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, w.bin, err)
	}
	return nil
}

func (w *cliWhisper) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	outDir, err := os.MkdirTemp("", "irdin-"+w.name+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	if _, err := w.runner.Run(ctx, w.bin, w.args(audioPath, outDir)...); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", w.name, err)
	}
	return parseWhisperJSON(data)
}

func newFasterWhisper(model string, s Settings) Backend {
	bin := s.FasterWhisperBin
	if bin == "" {
		bin = "whisper-ctranslate2"
	}
	device := s.Device
	if device == "" {
		device = "auto"
	}
	return &cliWhisper{
		name:   PrecisionLocal,
		bin:    bin,
		model:  model,
		runner: s.Runner,
		args: func(audioPath, outDir string) []string {
			args := []string{audioPath,
				"--model", model,
				"--language", s.Language,
				"--device", device,
				"--compute_type", "auto",
				"--output_format", "json",
				"--output_dir", outDir,
			}
			if s.ModelsDir != "" {
				args = append(args, "--model_dir", s.ModelsDir)
			}
			return args
		},
	}
}

var mlxModels = map[string]string{
	"large-v3":       "mlx-community/whisper-large-v3-mlx",
	"large-v3-turbo": "mlx-community/whisper-large-v3-turbo",
	"large-v2":       "mlx-community/whisper-large-v2-mlx",
}

// resolveMLXModel maps short model names to mlx-community repositories.
// Names containing a slash are already repositories.
func resolveMLXModel(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	if repo, ok := mlxModels[model]; ok {
		return repo
	}
	return "mlx-community/whisper-" + model + "-mlx"
}

func newMLXWhisper(model string, s Settings) Backend {
	bin := s.MLXWhisperBin
	if bin == "" {
		bin = "mlx_whisper"
	}
	model = resolveMLXModel(model)
	return &cliWhisper{
		name:   AcceleratedLocal,
		bin:    bin,
		model:  model,
		runner: s.Runner,
		args: func(audioPath, outDir string) []string {
			return []string{audioPath,
				"--model", model,
				"--language", s.Language,
				"--output-format", "json",
				"--output-dir", outDir,
				"--verbose", "False",
			}
		},
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
