package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

// Load decodes a byte stream that may contain one or many YAML/JSON
// documents into a slice of Manifest, in document order. Empty documents are
// skipped, matching kubectl/helm behavior.
func Load(data []byte) ([]*Manifest, error) {
	var out []*Manifest
	stream := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)

	for {
		obj := &unstructured.Unstructured{}
		if err := stream.Decode(obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode manifest document: %w", err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		m, err := New(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadAll decodes every byte slice in docs (one per source file, typically)
// and concatenates the results in input order.
func LoadAll(docs [][]byte) ([]*Manifest, error) {
	var out []*Manifest
	for _, d := range docs {
		ms, err := Load(d)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	return out, nil
}
