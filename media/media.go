// Package media resolves a file to its media kind once and dispatches it to
// the embedding handler registered for that kind.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Kind is the media type of an input file
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
	KindAudio
)

// SidecarSuffix is appended to a media path to find its precomputed embedding
const SidecarSuffix = ".emb.json"

var (
	// ErrUnsupported is returned for file extensions that map to no Kind.
	ErrUnsupported = errors.New("unsupported media type")

	// ErrNoHandler is returned when no handler is registered for a Kind.
	ErrNoHandler = errors.New("no handler registered for media kind")
)

var extensions = map[string]Kind{
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".bmp":  KindImage,
	".gif":  KindImage,
	".webp": KindImage,

	".mp4":  KindVideo,
	".mkv":  KindVideo,
	".avi":  KindVideo,
	".mov":  KindVideo,
	".webm": KindVideo,
	".m4v":  KindVideo,

	".wav":  KindAudio,
	".mp3":  KindAudio,
	".m4a":  KindAudio,
	".aac":  KindAudio,
	".ogg":  KindAudio,
	".flac": KindAudio,
}

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Detect resolves a path's Kind from its extension, case-insensitively
func Detect(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if kind, ok := extensions[ext]; ok {
		return kind, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupported, ext)
}

// Handler turns a media file into an embedding
type Handler interface {
	Embed(ctx context.Context, path string) ([]float32, error)
}

// HandlerFunc adapts a function to a Handler
type HandlerFunc func(ctx context.Context, path string) ([]float32, error)

func (f HandlerFunc) Embed(ctx context.Context, path string) ([]float32, error) {
	return f(ctx, path)
}

// Registry maps each Kind to its Handler
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// NewSidecarRegistry registers SidecarHandler for every Kind
func NewSidecarRegistry() *Registry {
	r := NewRegistry()
	for _, kind := range []Kind{KindImage, KindVideo, KindAudio} {
		r.Register(kind, SidecarHandler{})
	}
	return r
}

// Register sets the handler for kind, replacing any previous one
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Embed detects the path's Kind and runs its handler
func (r *Registry) Embed(ctx context.Context, path string) ([]float32, Kind, error) {
	kind, err := Detect(path)
	if err != nil {
		return nil, KindUnknown, err
	}

	r.mu.RLock()
	h, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, kind, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}

	embedding, err := h.Embed(ctx, path)
	if err != nil {
		return nil, kind, fmt.Errorf("failed to embed %s %s: %w", kind, path, err)
	}
	return embedding, kind, nil
}

// SidecarHandler reads the embedding an upstream extractor wrote next to the
// media file as <path>.emb.json. The file holds either a bare JSON array or
// an object with an "embedding" field.
type SidecarHandler struct{}

type sidecar struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model,omitempty"`
}

func (SidecarHandler) Embed(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path + SidecarSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}
	return ParseEmbedding(data)
}

// ParseEmbedding decodes an embedding from a bare JSON array or a sidecar object
func ParseEmbedding(data []byte) ([]float32, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var embedding []float32
		if err := json.Unmarshal(data, &embedding); err != nil {
			return nil, fmt.Errorf("failed to parse embedding: %w", err)
		}
		return embedding, nil
	}

	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse embedding: %w", err)
	}
	if len(sc.Embedding) == 0 {
		return nil, errors.New("embedding field is empty")
	}
	return sc.Embedding, nil
}
