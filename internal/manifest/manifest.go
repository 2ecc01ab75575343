// Package manifest implements the typed representation of a single rendered
// cluster object together with the standard annotations the rest of the
// engine reads off of it.
//
// A Manifest wraps an *unstructured.Unstructured rather than introducing a
// custom typed tree, since the engine must accept arbitrary, possibly
// custom-resource kinds.
package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Standard annotation keys recognized on manifests. Bit-exact names matter
// for compatibility with existing rendered packs, so these are kept
// unprefixed.
const (
	AnnotationHook              = "hook"
	AnnotationHookWeight        = "hook-weight"
	AnnotationHookDeletePolicy  = "hook-delete-policy"
	AnnotationResourcePolicy    = "resource-policy"
	AnnotationSyncWave          = "sync-wave"
	AnnotationCRDPolicy         = "crd-policy"
	AnnotationHealthCheck       = "health-check"
	AnnotationHealthCheckURL    = "health-check-url"
	AnnotationHealthCheckCmd    = "health-check-command"
	AnnotationHealthInterval    = "health-check-interval"
	AnnotationHealthTimeout     = "health-check-timeout"
)

// HookPhase enumerates the lifecycle points a Hook manifest may fire at.
type HookPhase string

const (
	HookPreInstall   HookPhase = "pre-install"
	HookPostInstall  HookPhase = "post-install"
	HookPreUpgrade   HookPhase = "pre-upgrade"
	HookPostUpgrade  HookPhase = "post-upgrade"
	HookPreRollback  HookPhase = "pre-rollback"
	HookPostRollback HookPhase = "post-rollback"
	HookPreDelete    HookPhase = "pre-delete"
	HookPostDelete   HookPhase = "post-delete"
	HookTest         HookPhase = "test"
)

// HookDeletePolicy enumerates when a hook resource from a prior run should
// be cleaned up.
type HookDeletePolicy string

const (
	HookDeleteBeforeCreation HookDeletePolicy = "before-hook-creation"
	HookDeleteSucceeded      HookDeletePolicy = "hook-succeeded"
	HookDeleteFailed         HookDeletePolicy = "hook-failed"
)

// ResourcePolicy enumerates the retain-on-delete directive.
type ResourcePolicy string

const (
	ResourcePolicyDefault ResourcePolicy = ""
	ResourcePolicyKeep    ResourcePolicy = "keep"
)

// CRDPolicy enumerates the declared lifecycle intent for a CRD.
type CRDPolicy string

const (
	CRDPolicyManaged  CRDPolicy = "managed"
	CRDPolicyShared   CRDPolicy = "shared"
	CRDPolicyExternal CRDPolicy = "external"
)

// HealthCheckKind enumerates the per-resource readiness override.
type HealthCheckKind string

const (
	HealthCheckDefault HealthCheckKind = ""
	HealthCheckHTTP    HealthCheckKind = "http"
	HealthCheckCommand HealthCheckKind = "command"
	HealthCheckNone    HealthCheckKind = "none"
)

// Scope describes whether a manifest's kind is cluster- or namespace-scoped.
type Scope string

const (
	ScopeCluster    Scope = "Cluster"
	ScopeNamespaced Scope = "Namespaced"
)

// Role classifies a manifest for ordering/execution purposes.
type Role string

const (
	RoleNormal Role = "Normal"
	RoleCRD    Role = "CRD"
	RoleHook   Role = "Hook"
)

// crdKind is the kind name the engine recognizes as a CustomResourceDefinition.
const crdKind = "CustomResourceDefinition"

// Manifest is an immutable tuple identified by (GroupVersion, Kind,
// Namespace, Name). Its clustering fields are derived: New sets SyncWave
// (from the sync-wave annotation) and Role; OrderBucket is set by the
// classify package once a whole batch is known.
type Manifest struct {
	obj *unstructured.Unstructured

	// Derived fields. SyncWave and Role are set by New; OrderBucket stays
	// zero until the classify package sets it.
	OrderBucket int
	SyncWave    int
	Role        Role
}

// New wraps an already-decoded unstructured object as a Manifest, validating
// the minimum fields required for it to be addressable and appliable.
func New(obj *unstructured.Unstructured) (*Manifest, error) {
	if obj == nil || obj.Object == nil {
		return nil, fmt.Errorf("malformed manifest: empty object")
	}
	if obj.GetKind() == "" {
		return nil, fmt.Errorf("malformed manifest: missing kind")
	}
	if obj.GetAPIVersion() == "" {
		return nil, fmt.Errorf("malformed manifest: missing apiVersion")
	}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("malformed manifest: missing name")
	}
	m := &Manifest{obj: obj}
	m.SyncWave = m.syncWaveFromAnnotation()
	if m.IsCRD() {
		m.Role = RoleCRD
	} else if len(m.HookPhases()) > 0 {
		m.Role = RoleHook
	} else {
		m.Role = RoleNormal
	}
	return m, nil
}

// Unstructured returns the underlying object. Callers must not mutate the
// returned value's identity fields; Manifest is meant to behave as
// immutable once constructed.
func (m *Manifest) Unstructured() *unstructured.Unstructured { return m.obj }

func (m *Manifest) GroupVersionKind() schema.GroupVersionKind { return m.obj.GroupVersionKind() }
func (m *Manifest) Kind() string                              { return m.obj.GetKind() }
func (m *Manifest) APIVersion() string                        { return m.obj.GetAPIVersion() }
func (m *Manifest) Namespace() string                         { return m.obj.GetNamespace() }
func (m *Manifest) Name() string                              { return m.obj.GetName() }
func (m *Manifest) Labels() map[string]string                 { return m.obj.GetLabels() }
func (m *Manifest) Annotations() map[string]string             { return m.obj.GetAnnotations() }

// SetNamespace fills in a namespace default when the manifest doesn't
// already declare one of its own.
func (m *Manifest) SetNamespace(ns string) {
	if m.obj.GetNamespace() == "" {
		m.obj.SetNamespace(ns)
	}
}

// ID returns a Manifest's four-tuple identity.
type ID struct {
	GroupVersion string
	Kind         string
	Namespace    string
	Name         string
}

func (id ID) String() string {
	if id.Namespace == "" {
		return fmt.Sprintf("%s/%s %s", id.GroupVersion, id.Kind, id.Name)
	}
	return fmt.Sprintf("%s/%s %s/%s", id.GroupVersion, id.Kind, id.Namespace, id.Name)
}

func (m *Manifest) ID() ID {
	return ID{
		GroupVersion: m.obj.GetAPIVersion(),
		Kind:         m.obj.GetKind(),
		Namespace:    m.obj.GetNamespace(),
		Name:         m.obj.GetName(),
	}
}

// IsCRD reports whether this manifest declares a CustomResourceDefinition.
func (m *Manifest) IsCRD() bool { return m.obj.GetKind() == crdKind }

// HookPhases parses the comma-joined `hook` annotation into its phase list.
// Unrecognized phase tokens are dropped rather than erroring.
func (m *Manifest) HookPhases() []HookPhase {
	raw, ok := m.obj.GetAnnotations()[AnnotationHook]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []HookPhase
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		switch HookPhase(tok) {
		case HookPreInstall, HookPostInstall, HookPreUpgrade, HookPostUpgrade,
			HookPreRollback, HookPostRollback, HookPreDelete, HookPostDelete, HookTest:
			out = append(out, HookPhase(tok))
		}
	}
	return out
}

// HasHookPhase reports whether phase is among this manifest's hook phases.
func (m *Manifest) HasHookPhase(phase HookPhase) bool {
	for _, p := range m.HookPhases() {
		if p == phase {
			return true
		}
	}
	return false
}

// HookWeight reads the `hook-weight` annotation, defaulting to 0.
func (m *Manifest) HookWeight() int {
	raw, ok := m.obj.GetAnnotations()[AnnotationHookWeight]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// HookDeletePolicies parses the comma-joined `hook-delete-policy` annotation.
// The default when unset is before-hook-creation.
func (m *Manifest) HookDeletePolicies() []HookDeletePolicy {
	raw, ok := m.obj.GetAnnotations()[AnnotationHookDeletePolicy]
	if !ok || strings.TrimSpace(raw) == "" {
		return []HookDeletePolicy{HookDeleteBeforeCreation}
	}
	var out []HookDeletePolicy
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		switch HookDeletePolicy(tok) {
		case HookDeleteBeforeCreation, HookDeleteSucceeded, HookDeleteFailed:
			out = append(out, HookDeletePolicy(tok))
		}
	}
	if len(out) == 0 {
		return []HookDeletePolicy{HookDeleteBeforeCreation}
	}
	return out
}

// HasDeletePolicy reports whether policy is among this hook's delete
// policies.
func (m *Manifest) HasDeletePolicy(policy HookDeletePolicy) bool {
	for _, p := range m.HookDeletePolicies() {
		if p == policy {
			return true
		}
	}
	return false
}

// ResourcePolicy reads the `resource-policy` annotation.
func (m *Manifest) ResourcePolicy() ResourcePolicy {
	raw := m.obj.GetAnnotations()[AnnotationResourcePolicy]
	if strings.TrimSpace(strings.ToLower(raw)) == string(ResourcePolicyKeep) {
		return ResourcePolicyKeep
	}
	return ResourcePolicyDefault
}

// IsKept reports whether this manifest must never be deleted by the
// controller.
func (m *Manifest) IsKept() bool { return m.ResourcePolicy() == ResourcePolicyKeep }

func (m *Manifest) syncWaveFromAnnotation() int {
	raw, ok := m.obj.GetAnnotations()[AnnotationSyncWave]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// CRDPolicy reads the `crd-policy` annotation, applying the legacy mapping:
// `resource-policy=keep` on a CRD is equivalent to `shared`. Non-CRD
// manifests always return "" (policy is meaningless there).
func (m *Manifest) CRDPolicy() CRDPolicy {
	if !m.IsCRD() {
		return ""
	}
	if raw := strings.ToLower(m.obj.GetAnnotations()[AnnotationCRDPolicy]); raw != "" {
		switch CRDPolicy(raw) {
		case CRDPolicyManaged, CRDPolicyShared, CRDPolicyExternal:
			return CRDPolicy(raw)
		}
	}
	if m.IsKept() {
		return CRDPolicyShared
	}
	return CRDPolicyManaged
}

// HealthCheck reads the per-resource health-check override annotations.
type HealthCheck struct {
	Kind     HealthCheckKind
	URL      string
	Command  []string
	Interval string
	Timeout  string
}

func (m *Manifest) HealthCheck() HealthCheck {
	ann := m.obj.GetAnnotations()
	hc := HealthCheck{
		Kind:     HealthCheckKind(strings.ToLower(ann[AnnotationHealthCheck])),
		URL:      ann[AnnotationHealthCheckURL],
		Interval: ann[AnnotationHealthInterval],
		Timeout:  ann[AnnotationHealthTimeout],
	}
	if raw := ann[AnnotationHealthCheckCmd]; raw != "" {
		hc.Command = strings.Fields(raw)
	}
	return hc
}
