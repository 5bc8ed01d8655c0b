package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/ids"
	"dispatchhub/internal/media/sniffer"
	"dispatchhub/internal/media/svg"
	"dispatchhub/internal/models"
)

// ObjectPutter is the slice of the object store the proof service needs.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ProofService turns inline data-URI images in a proof-of-delivery bundle
// into stored objects. Plain URLs pass through untouched.
type ProofService struct {
	objects ObjectPutter
	maxSize int64
	log     zerolog.Logger
}

// NewProofService builds the service. A nil objects store keeps data URIs
// inline after validating them.
func NewProofService(objects ObjectPutter, maxSize int64, log zerolog.Logger) *ProofService {
	return &ProofService{objects: objects, maxSize: maxSize, log: log}
}

func (s *ProofService) Store(ctx context.Context, taskID string, proof models.ProofOfDelivery) (models.ProofOfDelivery, error) {
	var err error
	if proof.Signature, err = s.storeOne(ctx, taskID, "signature", proof.Signature); err != nil {
		return models.ProofOfDelivery{}, err
	}
	if proof.Photo, err = s.storeOne(ctx, taskID, "photo", proof.Photo); err != nil {
		return models.ProofOfDelivery{}, err
	}
	return proof, nil
}

func (s *ProofService) storeOne(ctx context.Context, taskID, kind, value string) (string, error) {
	if !strings.HasPrefix(value, "data:") {
		return value, nil
	}

	declared, data, err := decodeDataURI(value)
	if err != nil {
		return "", apperr.Validation("%s: %v", kind, err)
	}
	if len(data) == 0 {
		return "", apperr.Validation("%s: empty image", kind)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", apperr.Validation("%s: image exceeds %d bytes", kind, s.maxSize)
	}

	result, err := sniffer.Detect(data)
	if err != nil {
		return "", apperr.Validation("%s: unsupported image type", kind)
	}
	if !result.Matches(declared) {
		return "", apperr.Validation("%s: content type mismatch: declared %s, actual %s", kind, declared, result.MIME)
	}

	if result.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return "", apperr.Validation("%s: %v", kind, err)
		}
		data = clean
	}

	if s.objects == nil {
		if result.Type == sniffer.TypeSVG {
			return "data:" + result.MIME + ";base64," + base64.StdEncoding.EncodeToString(data), nil
		}
		return value, nil
	}

	key := proofObjectKey(taskID, kind, result.Ext())
	url, err := s.objects.Put(ctx, key, data, result.MIME)
	if err != nil {
		return "", apperr.Internal(err, "store proof of delivery")
	}
	s.log.Info().Str("task_id", taskID).Str("kind", kind).Str("object", key).Int("size", len(data)).Msg("proof stored")
	return url, nil
}

func proofObjectKey(taskID, kind, ext string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, taskID, fmt.Sprintf("%s-%s.%s", kind, ids.New(), ext))
}

// decodeDataURI accepts only base64 data URIs: data:<mime>;base64,<payload>.
func decodeDataURI(value string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok {
		return "", nil, errors.New("malformed data URI")
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return "", nil, errors.New("data URI must be base64 encoded")
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", nil, errors.New("invalid base64 payload")
	}
	return mediaType, data, nil
}
