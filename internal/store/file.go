package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// fileBackend is the filesystem store backend: one directory per revision
// under <root>/<namespace>/<name>/v<revision>.
type fileBackend struct {
	root string
}

// NewFileStore builds a Store backed by the local filesystem rooted at root.
func NewFileStore(root string, codec Codec) Store {
	return newGenericStore(&fileBackend{root: root}, codec)
}

func (b *fileBackend) revisionDir(name, namespace string, revision int) string {
	return filepath.Join(b.root, namespace, name, fmt.Sprintf("v%d", revision))
}

type fileMeta struct {
	Codec       string `json:"codec"`
	ChunkCount  int    `json:"chunkCount"`
	State       string `json:"state"`
	Description string `json:"description"`
}

func (b *fileBackend) create(_ context.Context, obj blobObject) error {
	dir := b.revisionDir(obj.Name, obj.Namespace, obj.Revision)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s/%s v%d", ErrConflict, obj.Namespace, obj.Name, obj.Revision)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return b.writeObject(dir, obj)
}

func (b *fileBackend) update(_ context.Context, obj blobObject) error {
	dir := b.revisionDir(obj.Name, obj.Namespace, obj.Revision)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return b.writeObject(dir, obj)
}

func (b *fileBackend) writeObject(dir string, obj blobObject) error {
	meta := fileMeta{Codec: obj.Codec, ChunkCount: obj.ChunkCount, State: obj.State, Description: obj.Description}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), metaBytes, 0o644); err != nil {
		return err
	}
	for i, c := range obj.Chunks {
		path := filepath.Join(dir, fmt.Sprintf("chunk-%d.bin", i))
		if err := os.WriteFile(path, c, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (b *fileBackend) get(_ context.Context, name, namespace string, revision int) (blobObject, error) {
	dir := b.revisionDir(name, namespace, revision)
	metaBytes, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return blobObject{}, ErrNotFound
		}
		return blobObject{}, err
	}
	var meta fileMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return blobObject{}, err
	}
	chunks := make([][]byte, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("chunk-%d.bin", i)))
		if err != nil {
			return blobObject{}, err
		}
		chunks[i] = data
	}
	return blobObject{
		Name: name, Namespace: namespace, Revision: revision,
		Codec: meta.Codec, ChunkCount: meta.ChunkCount, Chunks: chunks,
		State: meta.State, Description: meta.Description,
	}, nil
}

func (b *fileBackend) listRevisions(_ context.Context, name, namespace string) ([]blobObject, error) {
	base := filepath.Join(b.root, namespace, name)
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []blobObject
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		rev, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "v"))
		if err != nil {
			continue
		}
		obj, err := b.get(context.Background(), name, namespace, rev)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (b *fileBackend) listNames(_ context.Context, namespace string) ([]string, error) {
	base := filepath.Join(b.root, namespace)
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (b *fileBackend) delete(_ context.Context, name, namespace string, revision int) error {
	dir := b.revisionDir(name, namespace, revision)
	err := os.RemoveAll(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
