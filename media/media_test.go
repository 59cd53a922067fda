package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/FrenchMajesty/openworld-classifier/media"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path    string
		want    media.Kind
		wantErr bool
	}{
		{"photo.jpg", media.KindImage, false},
		{"/a/b/PHOTO.JPEG", media.KindImage, false},
		{"clip.mkv", media.KindVideo, false},
		{"song.flac", media.KindAudio, false},
		{"notes.txt", media.KindUnknown, true},
		{"noext", media.KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := media.Detect(tt.path)
			if tt.wantErr {
				if !errors.Is(err, media.ErrUnsupported) {
					t.Errorf("Expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := media.NewRegistry()
	var seen []string
	r.Register(media.KindImage, media.HandlerFunc(func(ctx context.Context, path string) ([]float32, error) {
		seen = append(seen, path)
		return []float32{1, 2}, nil
	}))

	embedding, kind, err := r.Embed(context.Background(), "cat.png")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if kind != media.KindImage || !reflect.DeepEqual(embedding, []float32{1, 2}) {
		t.Errorf("Unexpected result %s %v", kind, embedding)
	}
	if !reflect.DeepEqual(seen, []string{"cat.png"}) {
		t.Errorf("Expected handler to see cat.png, got %v", seen)
	}

	if _, _, err := r.Embed(context.Background(), "clip.mp4"); !errors.Is(err, media.ErrNoHandler) {
		t.Errorf("Expected ErrNoHandler, got %v", err)
	}
	if _, _, err := r.Embed(context.Background(), "doc.pdf"); !errors.Is(err, media.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	boom := errors.New("decoder crashed")
	r := media.NewRegistry()
	r.Register(media.KindAudio, media.HandlerFunc(func(ctx context.Context, path string) ([]float32, error) {
		return nil, boom
	}))

	if _, _, err := r.Embed(context.Background(), "a.wav"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped handler error, got %v", err)
	}
}

func TestSidecarHandler(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    []float32
		wantErr bool
	}{
		{"array", `[0.5, -1, 2]`, []float32{0.5, -1, 2}, false},
		{"object", `{"embedding": [1, 0], "model": "clip"}`, []float32{1, 0}, false},
		{"empty object", `{}`, nil, true},
		{"garbage", `not json`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".jpg")
			if err := os.WriteFile(path+media.SidecarSuffix, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write sidecar: %v", err)
			}

			got, kind, err := media.NewSidecarRegistry().Embed(context.Background(), path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed failed: %v", err)
			}
			if kind != media.KindImage || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected image %v, got %s %v", tt.want, kind, got)
			}
		})
	}
}

func TestSidecarHandler_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if _, err := (media.SidecarHandler{}).Embed(context.Background(), path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
