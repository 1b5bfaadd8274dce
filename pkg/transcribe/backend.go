package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"irdin-archive/pkg/httpclient"
)

// Backend names accepted by New
const (
	PrecisionLocal   = "precision-local"
	AcceleratedLocal = "accelerated-local"
	CompactLocal     = "compact-local"
	RemoteAPI        = "remote-api"
)

var (
	// ErrUnknownBackend is returned by New for a name it does not know
	ErrUnknownBackend = errors.New("unknown transcription backend")

	// ErrBackendUnavailable is returned by Load when the engine cannot run on this machine
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
)

// Segment is one timed piece of recognised speech. Times are in seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the ordered segment list of one audio file plus its duration
type Result struct {
	Segments []Segment
	Duration time.Duration
}

// Backend is a speech-to-text engine.
type Backend interface {
	Name() string
	Model() string

	// Load checks that the engine and its model are usable. A failure here
	// aborts the whole run before any track is touched.
	Load(ctx context.Context) error

	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// Settings carries what the backends need from configuration
type Settings struct {
	FasterWhisperBin string
	MLXWhisperBin    string
	WhisperCppBin    string
	FFmpegBin        string
	ModelsDir        string
	Language         string
	Device           string

	RemoteBaseURL string
	RemoteAPIKey  string

	// Runner executes the external engines; nil uses os/exec
	Runner Runner

	// Client is used by the remote backend; nil creates an API client
	Client *httpclient.HTTPClient
}

var defaultModels = map[string]string{
	PrecisionLocal:   "large-v3-turbo",
	AcceleratedLocal: "mlx-community/whisper-large-v3-turbo",
	CompactLocal:     "large-v3-turbo",
	RemoteAPI:        "whisper-large-v3-turbo",
}

// Names lists the known backends in a stable order
func Names() []string {
	names := make([]string, 0, len(defaultModels))
	for name := range defaultModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultModel returns the model used when none is requested
func DefaultModel(name string) string {
	return defaultModels[name]
}

// New returns the backend registered under name. An empty model selects the backend default.
func New(name, model string, s Settings) (Backend, error) {
	def, ok := defaultModels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownBackend, name, Names())
	}
	if model == "" {
		model = def
	}
	if s.Language == "" {
		s.Language = "pt"
	}
	if s.Runner == nil {
		s.Runner = ExecRunner{}
	}

	switch name {
	case PrecisionLocal:
		return newFasterWhisper(model, s), nil
	case AcceleratedLocal:
		return newMLXWhisper(model, s), nil
	case CompactLocal:
		return newWhisperCpp(model, s), nil
	default:
		return newRemote(model, s), nil
	}
}

// Fingerprint identifies the backend and model that produced a transcription
func Fingerprint(b Backend) string {
	return b.Name() + ":" + b.Model()
}
