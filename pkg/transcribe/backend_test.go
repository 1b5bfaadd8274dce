package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and lets a test produce the files a real engine would write
type fakeRunner struct {
	missing map[string]bool
	calls   [][]string
	onRun   func(name string, args []string) error
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.missing[file] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + file, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		return nil, f.onRun(name, args)
	}
	return nil, nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

const whisperOutput = `{"text":" Olá. Tudo bem?","language":"pt","segments":[
{"id":0,"start":0.0,"end":2.5,"text":" Olá."},
{"id":1,"start":2.5,"end":3661.0,"text":" Tudo bem?"}]}`

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("faster-whisper", "", Settings{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNew_DefaultModelsAndFingerprint(t *testing.T) {
	for _, name := range Names() {
		b, err := New(name, "", Settings{Runner: &fakeRunner{}})
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
		assert.Equal(t, DefaultModel(name), b.Model())
		assert.Equal(t, name+":"+DefaultModel(name), Fingerprint(b))
	}
}

func TestResolveMLXModel(t *testing.T) {
	assert.Equal(t, "mlx-community/whisper-large-v3-mlx", resolveMLXModel("large-v3"))
	assert.Equal(t, "mlx-community/whisper-small-mlx", resolveMLXModel("small"))
	assert.Equal(t, "me/my-model", resolveMLXModel("me/my-model"))

	b, err := New(AcceleratedLocal, "large-v2", Settings{Runner: &fakeRunner{}})
	require.NoError(t, err)
	assert.Equal(t, "accelerated-local:mlx-community/whisper-large-v2-mlx", Fingerprint(b))
}

func TestPrecisionLocal_ReadsJSONOutput(t *testing.T) {
	runner := &fakeRunner{onRun: func(name string, args []string) error {
		return os.WriteFile(filepath.Join(argAfter(args, "--output_dir"), "palestra.json"), []byte(whisperOutput), 0o644)
	}}
	b, err := New(PrecisionLocal, "", Settings{Runner: runner, Language: "pt"})
	require.NoError(t, err)
	require.NoError(t, b.Load(context.Background()))

	res, err := b.Transcribe(context.Background(), "/data/audios/palestra.mp3")
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, Segment{Start: 2.5, End: 3661, Text: " Tudo bem?"}, res.Segments[1])
	assert.Equal(t, 3661*time.Second, res.Duration)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "whisper-ctranslate2", call[0])
	assert.Equal(t, "/data/audios/palestra.mp3", call[1])
	assert.Equal(t, "large-v3-turbo", argAfter(call, "--model"))
	assert.Equal(t, "pt", argAfter(call, "--language"))
}

func TestLocalBackends_LoadFailsWithoutBinary(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"mlx_whisper": true}}
	b, err := New(AcceleratedLocal, "", Settings{Runner: runner})
	require.NoError(t, err)
	assert.ErrorIs(t, b.Load(context.Background()), ErrBackendUnavailable)
}

func TestCompactLocal(t *testing.T) {
	modelsDir := t.TempDir()

	runner := &fakeRunner{onRun: func(name string, args []string) error {
		if name != "whisper-cli" {
			return nil
		}
		out := `{"transcription":[
{"offsets":{"from":0,"to":1500},"text":" Primeira frase."},
{"offsets":{"from":1500,"to":1600},"text":" "},
{"offsets":{"from":62000,"to":64000},"text":" Segunda."}]}`
		return os.WriteFile(argAfter(args, "-of")+".json", []byte(out), 0o644)
	}}

	b, err := New(CompactLocal, "base", Settings{Runner: runner, ModelsDir: modelsDir})
	require.NoError(t, err)

	assert.ErrorIs(t, b.Load(context.Background()), ErrBackendUnavailable, "model file missing")
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "ggml-base.bin"), []byte("x"), 0o644))
	require.NoError(t, b.Load(context.Background()))

	res, err := b.Transcribe(context.Background(), "/data/audios/a.mp3")
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, 62.0, res.Segments[2].Start)
	assert.Equal(t, "[00:00:00] Primeira frase.\n[00:01:02] Segunda.", Timecoded(res.Segments))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "ffmpeg", runner.calls[0][0])
	assert.Equal(t, "16000", argAfter(runner.calls[0], "-ar"))
	assert.Equal(t, filepath.Join(modelsDir, "ggml-base.bin"), argAfter(runner.calls[1], "-m"))
}

func TestCompactLocal_FFmpegFailure(t *testing.T) {
	modelsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "ggml-large-v3-turbo.bin"), []byte("x"), 0o644))

	runner := &fakeRunner{onRun: func(name string, args []string) error {
		return errors.New("exit status 1")
	}}
	b, err := New(CompactLocal, "", Settings{Runner: runner, ModelsDir: modelsDir})
	require.NoError(t, err)

	_, err = b.Transcribe(context.Background(), "/data/audios/a.mp3")
	assert.ErrorContains(t, err, "convert to wav")
	assert.Len(t, runner.calls, 1)
}
