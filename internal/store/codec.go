// Package store implements persistence of immutable release revisions, with
// pluggable compression, size-triggered chunking, and compare-and-set
// concurrency control across three backend kinds (secret-like,
// configmap-like, filesystem).
package store

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/release"
	"github.com/hashmap-kz/shipctl/internal/shiperr"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Codec compresses/decompresses a release's serialized bytes. gzip is the
// default (stdlib, always available); zstd is a negotiable second codec for
// backends that want a smaller footprint at the cost of a non-stdlib
// dependency.
type Codec interface {
	Name() string
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}

// GzipCodec is the default codec.
type GzipCodec struct{}

func (GzipCodec) Name() string { return "gzip" }

func (GzipCodec) Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GzipCodec) Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ZstdCodec is the negotiable second codec, for backends willing to pay a
// non-stdlib dependency for a smaller footprint on large release bundles.
type ZstdCodec struct{}

func (ZstdCodec) Name() string { return "zstd" }

func (ZstdCodec) Compress(b []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil), nil
}

func (ZstdCodec) Decompress(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

// CodecByName resolves a codec name as recorded in a stored index, so a
// reader never needs to be told out-of-band which codec a writer used.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "gzip":
		return GzipCodec{}, nil
	case "zstd":
		return ZstdCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown release codec %q", name)
	}
}

// releaseDTO is the JSON wire shape for a Release. Manifests are carried as
// raw decoded objects (not *manifest.Manifest, which keeps its underlying
// unstructured.Unstructured unexported) and rebuilt through manifest.New on
// decode, so a stored release always re-validates on load.
type releaseDTO struct {
	Name        string    `json:"name"`
	Namespace   string    `json:"namespace"`
	Revision    int       `json:"revision"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Description string    `json:"description"`

	ValuesSnapshot   map[string]interface{} `json:"valuesSnapshot,omitempty"`
	ValuesProvenance []valuesLayerDTO        `json:"valuesProvenance,omitempty"`

	Manifests []map[string]interface{} `json:"manifests"`

	PackRef       string `json:"packRef"`
	EngineVersion string `json:"engineVersion"`
}

type valuesLayerDTO struct {
	Source   string                 `json:"source"`
	Snapshot map[string]interface{} `json:"snapshot"`
}

func toDTO(r *release.Release) releaseDTO {
	dto := releaseDTO{
		Name:             r.Name,
		Namespace:        r.Namespace,
		Revision:         r.Revision,
		State:            string(r.State),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Description:      r.Description,
		ValuesSnapshot:   r.ValuesSnapshot,
		PackRef:          r.PackRef,
		EngineVersion:    r.EngineVersion,
		Manifests:        make([]map[string]interface{}, 0, len(r.Manifests)),
	}
	for _, layer := range r.ValuesProvenance {
		dto.ValuesProvenance = append(dto.ValuesProvenance, valuesLayerDTO{Source: layer.Source, Snapshot: layer.Snapshot})
	}
	for _, m := range r.Manifests {
		dto.Manifests = append(dto.Manifests, m.Unstructured().Object)
	}
	return dto
}

func fromDTO(dto releaseDTO) (*release.Release, error) {
	r := &release.Release{
		Name:          dto.Name,
		Namespace:     dto.Namespace,
		Revision:      dto.Revision,
		State:         release.State(dto.State),
		CreatedAt:     dto.CreatedAt,
		UpdatedAt:     dto.UpdatedAt,
		Description:   dto.Description,
		ValuesSnapshot: dto.ValuesSnapshot,
		PackRef:       dto.PackRef,
		EngineVersion: dto.EngineVersion,
	}
	for _, layer := range dto.ValuesProvenance {
		r.ValuesProvenance = append(r.ValuesProvenance, release.ValuesLayer{Source: layer.Source, Snapshot: layer.Snapshot})
	}
	for _, raw := range dto.Manifests {
		m, err := manifest.New(&unstructured.Unstructured{Object: raw})
		if err != nil {
			return nil, shiperr.Wrap(shiperr.KindStoreCorrupt, "decode stored manifest", err)
		}
		r.Manifests = append(r.Manifests, m)
	}
	return r, nil
}

// encodeRelease serializes and compresses r, ready for chunking.
func encodeRelease(r *release.Release, codec Codec) ([]byte, error) {
	raw, err := json.Marshal(toDTO(r))
	if err != nil {
		return nil, fmt.Errorf("marshal release: %w", err)
	}
	return codec.Compress(raw)
}

// decodeRelease reverses encodeRelease.
func decodeRelease(compressed []byte, codec Codec) (*release.Release, error) {
	raw, err := codec.Decompress(compressed)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindStoreCorrupt, "decompress release", err)
	}
	var dto releaseDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, shiperr.Wrap(shiperr.KindStoreCorrupt, "unmarshal release", err)
	}
	return fromDTO(dto)
}

// chunk splits data into parts no larger than maxBytes, preserving order.
func chunk(data []byte, maxBytes int) [][]byte {
	if len(data) <= maxBytes {
		return [][]byte{data}
	}
	var out [][]byte
	for len(data) > 0 {
		n := maxBytes
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// unchunk reassembles parts in order.
func unchunk(parts [][]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}
