package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OCI backend constants for the manifest/blob content types this engine
// pushes and pulls. No OCI client library is imported anywhere in the pack,
// so this speaks the minimal subset of the distribution HTTP API directly:
// manifest GET/PUT and blob GET/POST+PUT.
const (
	ociManifestMediaType = "application/vnd.oci.image.manifest.v1+json"
	ociLayerMediaType    = "application/vnd.oci.image.layer.v1.tar+gzip"
)

// ociManifest is the minimal image-manifest shape this backend reads and
// writes: one config blob, one layer blob holding the packed archive.
type ociManifest struct {
	SchemaVersion int             `json:"schemaVersion"`
	MediaType     string          `json:"mediaType"`
	Config        ociDescriptor   `json:"config"`
	Layers        []ociDescriptor `json:"layers"`
}

type ociDescriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// OCIBackend resolves packs as OCI artifacts, addressed as
// "oci://host/repository".
type OCIBackend struct {
	host       string
	repository string
	client     *http.Client
}

// NewOCIBackend builds an OCIBackend from an "oci://host/repository" ref.
func NewOCIBackend(ref string) (*OCIBackend, error) {
	trimmed := strings.TrimPrefix(ref, "oci://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid oci ref %q, want oci://host/repository", ref)
	}
	return &OCIBackend{
		host:       parts[0],
		repository: parts[1],
		client: &http.Client{
			Timeout:       60 * time.Second,
			CheckRedirect: stripCredentialsOnCrossOriginRedirect,
		},
	}, nil
}

func (b *OCIBackend) manifestURL(reference string) string {
	return fmt.Sprintf("https://%s/v2/%s/manifests/%s", b.host, b.repository, reference)
}

func (b *OCIBackend) blobURL(digest string) string {
	return fmt.Sprintf("https://%s/v2/%s/blobs/%s", b.host, b.repository, digest)
}

// Search is unsupported: the OCI distribution API has no pack-name search
// endpoint in the spec'd minimal subset.
func (b *OCIBackend) Search(_ context.Context, _ string) ([]Entry, error) {
	return nil, fmt.Errorf("search is not supported by the OCI backend")
}

// FindBestMatch fetches the tag list and picks the highest tag satisfying
// constraint, reusing the same filter-by-constraint-pick-highest shape the
// HTTP backend uses over index.yaml entries.
func (b *OCIBackend) FindBestMatch(ctx context.Context, name, constraint string) (Entry, error) {
	tags, err := b.listTags(ctx)
	if err != nil {
		return Entry{}, err
	}
	candidates := make([]Entry, len(tags))
	for i, tag := range tags {
		candidates[i] = Entry{Name: name, Version: tag}
	}
	return findBestMatch(name, constraint, candidates)
}

func (b *OCIBackend) listTags(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("https://%s/v2/%s/tags/list", b.host, b.repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create tags request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list tags: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse tags list: %w", err)
	}
	return body.Tags, nil
}

// Download fetches version's manifest, then its single layer blob — the
// packed archive.
func (b *OCIBackend) Download(ctx context.Context, _, version string) ([]byte, error) {
	manifest, err := b.fetchManifest(ctx, version)
	if err != nil {
		return nil, err
	}
	if len(manifest.Layers) == 0 {
		return nil, fmt.Errorf("manifest for %s has no layers", version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.blobURL(manifest.Layers[0].Digest), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create blob request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch blob: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (b *OCIBackend) fetchManifest(ctx context.Context, reference string) (*ociManifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.manifestURL(reference), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create manifest request: %w", err)
	}
	req.Header.Set("Accept", ociManifestMediaType)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", reference, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest %s: unexpected status %d", reference, resp.StatusCode)
	}

	var m ociManifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", reference, err)
	}
	return &m, nil
}

// Push uploads archive as version's single-layer OCI artifact: the blob,
// then a manifest referencing it tagged as version.
func (b *OCIBackend) Push(ctx context.Context, archive []byte, version string) error {
	layerDigest, err := b.uploadBlob(ctx, archive, ociLayerMediaType)
	if err != nil {
		return fmt.Errorf("upload layer: %w", err)
	}
	emptyConfigDigest, err := b.uploadBlob(ctx, []byte("{}"), "application/vnd.oci.empty.v1+json")
	if err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	manifest := ociManifest{
		SchemaVersion: 2,
		MediaType:     ociManifestMediaType,
		Config:        ociDescriptor{MediaType: "application/vnd.oci.empty.v1+json", Digest: emptyConfigDigest, Size: 2},
		Layers:        []ociDescriptor{{MediaType: ociLayerMediaType, Digest: layerDigest, Size: int64(len(archive))}},
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.manifestURL(version), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create manifest push request: %w", err)
	}
	req.Header.Set("Content-Type", ociManifestMediaType)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("push manifest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push manifest: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// uploadBlob performs the distribution API's two-step monolithic blob
// upload: POST to start the session, PUT the content with its digest.
func (b *OCIBackend) uploadBlob(ctx context.Context, content []byte, mediaType string) (string, error) {
	_ = mediaType
	sum := sha256.Sum256(content)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	startURL := fmt.Sprintf("https://%s/v2/%s/blobs/uploads/", b.host, b.repository)
	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost, startURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create upload session request: %w", err)
	}
	startResp, err := b.client.Do(startReq)
	if err != nil {
		return "", fmt.Errorf("start blob upload: %w", err)
	}
	uploadLocation := startResp.Header.Get("Location")
	_ = startResp.Body.Close()
	if startResp.StatusCode != http.StatusAccepted || uploadLocation == "" {
		return "", fmt.Errorf("start blob upload: unexpected status %d", startResp.StatusCode)
	}

	base, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse upload url: %w", err)
	}
	location, err := url.Parse(uploadLocation)
	if err != nil {
		return "", fmt.Errorf("parse upload location: %w", err)
	}
	putLocation := base.ResolveReference(location)
	query := putLocation.Query()
	query.Set("digest", digest)
	putLocation.RawQuery = query.Encode()
	putURL := putLocation.String()
	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("create blob put request: %w", err)
	}
	putReq.Header.Set("Content-Type", "application/octet-stream")
	putResp, err := b.client.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	defer func() { _ = putResp.Body.Close() }()
	if putResp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("put blob: unexpected status %d", putResp.StatusCode)
	}
	return digest, nil
}
