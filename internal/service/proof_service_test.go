package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
)

type memoryObjects struct {
	keys  []string
	types []string
	err   error
}

func (m *memoryObjects) Put(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	m.types = append(m.types, contentType)
	return "https://cdn.example.com/" + key, nil
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0x00, 0x0d}

func TestProofServiceStore(t *testing.T) {
	tests := []struct {
		name     string
		proof    models.ProofOfDelivery
		maxSize  int64
		wantKind apperr.Kind
		wantErr  bool
		wantPuts int
	}{
		{
			name:     "png signature uploaded",
			proof:    models.ProofOfDelivery{Signature: dataURI("image/png", pngBytes)},
			wantPuts: 1,
		},
		{
			name:  "plain url passes through",
			proof: models.ProofOfDelivery{Photo: "https://photos.example.com/1.jpg"},
		},
		{
			name:     "declared type mismatch",
			proof:    models.ProofOfDelivery{Photo: dataURI("image/jpeg", pngBytes)},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "not base64 encoded",
			proof:    models.ProofOfDelivery{Photo: "data:image/png,rawbytes"},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "too large",
			proof:    models.ProofOfDelivery{Photo: dataURI("image/png", pngBytes)},
			maxSize:  4,
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "unknown format",
			proof:    models.ProofOfDelivery{Photo: dataURI("image/png", []byte("hello world"))},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := &memoryObjects{}
			s := NewProofService(objects, tt.maxSize, zerolog.Nop())
			got, err := s.Store(context.Background(), "task-1", tt.proof)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Store() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if apperr.KindOf(err) != tt.wantKind {
					t.Errorf("kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
				}
				return
			}
			if len(objects.keys) != tt.wantPuts {
				t.Fatalf("puts = %d, want %d", len(objects.keys), tt.wantPuts)
			}
			if tt.wantPuts > 0 {
				if !strings.Contains(objects.keys[0], "task-1/signature-") || !strings.HasSuffix(objects.keys[0], ".png") {
					t.Errorf("object key = %s", objects.keys[0])
				}
				if objects.types[0] != "image/png" || !strings.HasPrefix(got.Signature, "https://cdn.example.com/") {
					t.Errorf("stored %s as %s", got.Signature, objects.types[0])
				}
			}
			if tt.proof.Photo != "" && !strings.HasPrefix(tt.proof.Photo, "data:") && got.Photo != tt.proof.Photo {
				t.Errorf("photo = %s", got.Photo)
			}
		})
	}
}

func TestProofServiceStorageFailure(t *testing.T) {
	s := NewProofService(&memoryObjects{err: errors.New("bucket gone")}, 0, zerolog.Nop())
	_, err := s.Store(context.Background(), "task-1", models.ProofOfDelivery{Signature: dataURI("image/png", pngBytes)})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Errorf("error = %v, want internal", err)
	}
	if msg := apperr.PublicMessage(err); strings.Contains(msg, "bucket") {
		t.Errorf("public message leaks cause: %q", msg)
	}
}

func TestDecodeDataURI(t *testing.T) {
	mime, data, err := decodeDataURI("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes))
	if err != nil || mime != "image/png" || len(data) != len(pngBytes) {
		t.Errorf("decodeDataURI() = %q, %d bytes, %v", mime, len(data), err)
	}
	if _, _, err := decodeDataURI("data:image/png;base64"); err == nil {
		t.Error("missing comma accepted")
	}
}
