package store

import (
	"context"
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// configMapBackend is the cluster-side configmap-like store backend. It
// differs from secretBackend only in the k8s type and in using BinaryData
// (ConfigMap's native []byte field) instead of base64-in-Data.
type configMapBackend struct {
	clientset kubernetes.Interface
}

// NewConfigMapStore builds a Store backed by one ConfigMap per release
// revision.
func NewConfigMapStore(clientset kubernetes.Interface, codec Codec) Store {
	return newGenericStore(&configMapBackend{clientset: clientset}, codec)
}

func (b *configMapBackend) create(ctx context.Context, obj blobObject) error {
	cm := toConfigMap(obj)
	_, err := b.clientset.CoreV1().ConfigMaps(obj.Namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("%w: %s/%s v%d", ErrConflict, obj.Namespace, obj.Name, obj.Revision)
	}
	return err
}

func (b *configMapBackend) update(ctx context.Context, obj blobObject) error {
	cm := toConfigMap(obj)
	current, err := b.clientset.CoreV1().ConfigMaps(obj.Namespace).Get(ctx, objectName(obj.Name, obj.Revision), metav1.GetOptions{})
	if err != nil {
		return err
	}
	cm.ResourceVersion = current.ResourceVersion
	_, err = b.clientset.CoreV1().ConfigMaps(obj.Namespace).Update(ctx, cm, metav1.UpdateOptions{})
	return err
}

func (b *configMapBackend) get(ctx context.Context, name, namespace string, revision int) (blobObject, error) {
	cm, err := b.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, objectName(name, revision), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return blobObject{}, ErrNotFound
		}
		return blobObject{}, err
	}
	return fromConfigMap(cm)
}

func (b *configMapBackend) listRevisions(ctx context.Context, name, namespace string) ([]blobObject, error) {
	list, err := b.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", labelOwner, ownerValue, labelRelease, name),
	})
	if err != nil {
		return nil, err
	}
	out := make([]blobObject, 0, len(list.Items))
	for i := range list.Items {
		obj, err := fromConfigMap(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (b *configMapBackend) listNames(ctx context.Context, namespace string) ([]string, error) {
	list, err := b.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", labelOwner, ownerValue),
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, cm := range list.Items {
		n := cm.Labels[labelRelease]
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

func (b *configMapBackend) delete(ctx context.Context, name, namespace string, revision int) error {
	err := b.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, objectName(name, revision), metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func toConfigMap(obj blobObject) *corev1.ConfigMap {
	data := make(map[string][]byte, obj.ChunkCount)
	for i, c := range obj.Chunks {
		data[fmt.Sprintf("chunk-%d", i)] = c
	}
	return &corev1.ConfigMap{
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
		BinaryData: data,
	}
}

func fromConfigMap(cm *corev1.ConfigMap) (blobObject, error) {
	revision, err := strconv.Atoi(cm.Labels[labelRevision])
	if err != nil {
		return blobObject{}, fmt.Errorf("configmap %s: invalid revision label: %w", cm.Name, err)
	}
	count, err := strconv.Atoi(cm.Annotations[annotationChunkCount])
	if err != nil {
		return blobObject{}, fmt.Errorf("configmap %s: invalid chunk-count annotation: %w", cm.Name, err)
	}
	chunks := make([][]byte, count)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("chunk-%d", i)
		data, ok := cm.BinaryData[key]
		if !ok {
			return blobObject{}, fmt.Errorf("configmap %s: missing %s", cm.Name, key)
		}
		chunks[i] = data
	}
	return blobObject{
		Name:        cm.Labels[labelRelease],
		Namespace:   cm.Namespace,
		Revision:    revision,
		Codec:       cm.Annotations[annotationCodec],
		ChunkCount:  count,
		Chunks:      chunks,
		State:       cm.Annotations[annotationState],
		Description: cm.Annotations[annotationDescription],
	}, nil
}
