package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	labelRelease  = "shipctl.io/release"
	labelRevision = "shipctl.io/revision"
	labelOwner    = "shipctl.io/owner"
	ownerValue    = "shipctl"

	annotationCodec       = "shipctl.io/codec"
	annotationChunkCount  = "shipctl.io/chunk-count"
	annotationState       = "shipctl.io/state"
	annotationDescription = "shipctl.io/description"
)

// objectName mirrors Helm's storage-driver naming convention, renamed into
// this project's namespace: "sh.shipctl.release.v1.<name>.v<revision>".
func objectName(name string, revision int) string {
	return fmt.Sprintf("sh.shipctl.release.v1.%s.v%d", name, revision)
}

// secretBackend is the cluster-side secret-like store backend.
type secretBackend struct {
	clientset kubernetes.Interface
}

// NewSecretStore builds a Store backed by one Secret per release revision.
func NewSecretStore(clientset kubernetes.Interface, codec Codec) Store {
	return newGenericStore(&secretBackend{clientset: clientset}, codec)
}

func (b *secretBackend) create(ctx context.Context, obj blobObject) error {
	secret := toSecret(obj)
	_, err := b.clientset.CoreV1().Secrets(obj.Namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("%w: %s/%s v%d", ErrConflict, obj.Namespace, obj.Name, obj.Revision)
	}
	return err
}

func (b *secretBackend) update(ctx context.Context, obj blobObject) error {
	secret := toSecret(obj)
	current, err := b.clientset.CoreV1().Secrets(obj.Namespace).Get(ctx, objectName(obj.Name, obj.Revision), metav1.GetOptions{})
	if err != nil {
		return err
	}
	secret.ResourceVersion = current.ResourceVersion
	_, err = b.clientset.CoreV1().Secrets(obj.Namespace).Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

func (b *secretBackend) get(ctx context.Context, name, namespace string, revision int) (blobObject, error) {
	secret, err := b.clientset.CoreV1().Secrets(namespace).Get(ctx, objectName(name, revision), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return blobObject{}, ErrNotFound
		}
		return blobObject{}, err
	}
	return fromSecret(secret)
}

func (b *secretBackend) listRevisions(ctx context.Context, name, namespace string) ([]blobObject, error) {
	list, err := b.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", labelOwner, ownerValue, labelRelease, name),
	})
	if err != nil {
		return nil, err
	}
	out := make([]blobObject, 0, len(list.Items))
	for i := range list.Items {
		obj, err := fromSecret(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (b *secretBackend) listNames(ctx context.Context, namespace string) ([]string, error) {
	list, err := b.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", labelOwner, ownerValue),
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range list.Items {
		n := s.Labels[labelRelease]
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

func (b *secretBackend) delete(ctx context.Context, name, namespace string, revision int) error {
	err := b.clientset.CoreV1().Secrets(namespace).Delete(ctx, objectName(name, revision), metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func toSecret(obj blobObject) *corev1.Secret {
	data := make(map[string][]byte, obj.ChunkCount)
	for i, c := range obj.Chunks {
		key := fmt.Sprintf("chunk-%d", i)
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(c)))
		base64.StdEncoding.Encode(encoded, c)
		data[key] = encoded
	}
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      objectName(obj.Name, obj.Revision),
			Namespace: obj.Namespace,
			Labels: map[string]string{
				labelOwner:    ownerValue,
				labelRelease:  obj.Name,
				labelRevision: strconv.Itoa(obj.Revision),
			},
			Annotations: map[string]string{
				annotationCodec:       obj.Codec,
				annotationChunkCount:  strconv.Itoa(obj.ChunkCount),
				annotationState:       obj.State,
				annotationDescription: obj.Description,
			},
		},
		Type: "shipctl.io/release.v1",
		Data: data,
	}
}

func fromSecret(s *corev1.Secret) (blobObject, error) {
	revision, err := strconv.Atoi(s.Labels[labelRevision])
	if err != nil {
		return blobObject{}, fmt.Errorf("secret %s: invalid revision label: %w", s.Name, err)
	}
	count, err := strconv.Atoi(s.Annotations[annotationChunkCount])
	if err != nil {
		return blobObject{}, fmt.Errorf("secret %s: invalid chunk-count annotation: %w", s.Name, err)
	}
	chunks := make([][]byte, count)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("chunk-%d", i)
		encoded, ok := s.Data[key]
		if !ok {
			return blobObject{}, fmt.Errorf("secret %s: missing %s", s.Name, key)
		}
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
		n, err := base64.StdEncoding.Decode(decoded, encoded)
		if err != nil {
			return blobObject{}, fmt.Errorf("secret %s: decode %s: %w", s.Name, key, err)
		}
		chunks[i] = decoded[:n]
	}
	return blobObject{
		Name:        s.Labels[labelRelease],
		Namespace:   s.Namespace,
		Revision:    revision,
		Codec:       s.Annotations[annotationCodec],
		ChunkCount:  count,
		Chunks:      chunks,
		State:       s.Annotations[annotationState],
		Description: s.Annotations[annotationDescription],
	}, nil
}
