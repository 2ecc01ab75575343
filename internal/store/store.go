package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashmap-kz/shipctl/internal/release"
)

// ErrNotFound is returned by Load when the requested revision does not exist.
var ErrNotFound = errors.New("release revision not found")

// ErrConflict is returned by Save when a revision already exists in the same
// non-terminal state as the one being saved — the compare-and-set guard
// against two writers creating the same revision.
var ErrConflict = errors.New("release revision already exists")

// Store is release.Store: the narrow persistence interface a release's
// revision history needs. The interface itself lives on the release package
// so that package can depend on it without importing this one; genericStore
// (and therefore NewFileStore/NewConfigMapStore/NewSecretStore) satisfies it
// structurally.
type Store = release.Store

// blobObject is one physical storage unit a backend persists — a whole
// release revision's compressed bytes, chunked if oversized, plus the small
// metadata needed to reassemble and to list revisions without decoding them.
type blobObject struct {
	Name        string
	Namespace   string
	Revision    int
	Codec       string
	ChunkCount  int
	Chunks      [][]byte
	State       string
	Description string
}

// backend is the minimal storage primitive each of the three kinds
// (secret-like, configmap-like, filesystem) implements. create fails with
// ErrConflict if the object already exists; update always overwrites (used
// by Save for an existing revision whose state changes or is terminal).
type backend interface {
	create(ctx context.Context, obj blobObject) error
	update(ctx context.Context, obj blobObject) error
	get(ctx context.Context, name, namespace string, revision int) (blobObject, error)
	listRevisions(ctx context.Context, name, namespace string) ([]blobObject, error)
	listNames(ctx context.Context, namespace string) ([]string, error)
	delete(ctx context.Context, name, namespace string, revision int) error
}

// maxObjectBytes bounds a single chunk's size, leaving headroom under the
// ~1MiB etcd object-size limit that motivates chunking for the cluster-side
// backends; the filesystem backend uses the same limit for consistency even
// though it has no such constraint.
const maxObjectBytes = 900 * 1024

// genericStore implements Store against any backend, layering encode/decode
// and chunking on top of the backend's raw create/update/get/list/delete.
type genericStore struct {
	b     backend
	codec Codec
}

func newGenericStore(b backend, codec Codec) *genericStore {
	if codec == nil {
		codec = GzipCodec{}
	}
	return &genericStore{b: b, codec: codec}
}

func (s *genericStore) Save(ctx context.Context, r *release.Release) error {
	compressed, err := encodeRelease(r, s.codec)
	if err != nil {
		return fmt.Errorf("encode release %s/%s v%d: %w", r.Namespace, r.Name, r.Revision, err)
	}
	chunks := chunk(compressed, maxObjectBytes)
	obj := blobObject{
		Name: r.Name, Namespace: r.Namespace, Revision: r.Revision,
		Codec: s.codec.Name(), ChunkCount: len(chunks), Chunks: chunks,
		State: string(r.State), Description: r.Description,
	}

	existing, err := s.b.get(ctx, r.Name, r.Namespace, r.Revision)
	switch {
	case errors.Is(err, ErrNotFound):
		if createErr := s.b.create(ctx, obj); createErr != nil {
			return createErr
		}
		return nil
	case err != nil:
		return err
	}

	// A revision already exists. Saving it again in the same non-terminal
	// state is a conflict; a change of state, or a save in a terminal state
	// (release.types.go's State.IsTerminal), overwrites it.
	if !release.State(obj.State).IsTerminal() && release.State(existing.State) == release.State(obj.State) {
		return fmt.Errorf("%w: %s/%s v%d", ErrConflict, r.Namespace, r.Name, r.Revision)
	}
	return s.b.update(ctx, obj)
}

func (s *genericStore) Load(ctx context.Context, name, namespace string, revision int) (*release.Release, error) {
	obj, err := s.b.get(ctx, name, namespace, revision)
	if err != nil {
		return nil, err
	}
	return s.decode(obj)
}

func (s *genericStore) decode(obj blobObject) (*release.Release, error) {
	codec, err := CodecByName(obj.Codec)
	if err != nil {
		return nil, err
	}
	compressed := unchunk(obj.Chunks)
	return decodeRelease(compressed, codec)
}

func (s *genericStore) History(ctx context.Context, name, namespace string) ([]release.Summary, error) {
	objs, err := s.b.listRevisions(ctx, name, namespace)
	if err != nil {
		return nil, err
	}
	out := make([]release.Summary, 0, len(objs))
	for _, obj := range objs {
		r, err := s.decode(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (s *genericStore) List(ctx context.Context, namespace string) ([]release.Summary, error) {
	names, err := s.b.listNames(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var out []release.Summary
	for _, name := range names {
		hist, err := s.History(ctx, name, namespace)
		if err != nil {
			return nil, err
		}
		if len(hist) > 0 {
			out = append(out, hist[len(hist)-1])
		}
	}
	return out, nil
}

func (s *genericStore) Delete(ctx context.Context, name, namespace string, revision int) error {
	return s.b.delete(ctx, name, namespace, revision)
}

func (s *genericStore) DeleteAll(ctx context.Context, name, namespace string, keepHistory bool) error {
	if keepHistory {
		return nil
	}
	hist, err := s.History(ctx, name, namespace)
	if err != nil {
		return err
	}
	for _, h := range hist {
		if err := s.b.delete(ctx, name, namespace, h.Revision); err != nil {
			return err
		}
	}
	return nil
}
