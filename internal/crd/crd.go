// Package crd implements CRD change-severity classification and
// managed/shared/external lifecycle policy enforcement.
//
// The comparison walks exactly the fields apiextensions.k8s.io/v1 exposes —
// versions, schema, scope, names — and waits for the standard "Established"
// condition before treating a CRD as ready for dependents.
package crd

import (
	"context"
	"fmt"
	"sort"
	"time"

	apiextv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/hashmap-kz/shipctl/internal/apply"
	"github.com/hashmap-kz/shipctl/internal/manifest"
	"github.com/hashmap-kz/shipctl/internal/shiperr"
)

// Severity is the impact classification of a single CRD change.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityWarning
	SeverityDangerous
)

func (s Severity) String() string {
	switch s {
	case SeveritySafe:
		return "Safe"
	case SeverityWarning:
		return "Warning"
	case SeverityDangerous:
		return "Dangerous"
	default:
		return "Unknown"
	}
}

// Change is a single detected difference between an old and new CRD.
type Change struct {
	Path     string
	Kind     string
	Severity Severity
	Detail   string
}

// ChangeSet is the ordered result of Compare; Overall is the max severity
// across Changes.
type ChangeSet struct {
	Changes []Change
	Overall Severity
}

// Compare computes the ordered set of changes between oldCRD and newCRD,
// both decoded as apiextensions.k8s.io/v1 CustomResourceDefinitions.
func Compare(oldObj, newObj *unstructured.Unstructured) (ChangeSet, error) {
	oldCRD, err := toTyped(oldObj)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("decode old CRD: %w", err)
	}
	newCRD, err := toTyped(newObj)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("decode new CRD: %w", err)
	}

	var changes []Change
	changes = append(changes, compareNames(oldCRD, newCRD)...)
	changes = append(changes, compareScope(oldCRD, newCRD)...)
	changes = append(changes, compareVersions(oldCRD, newCRD)...)

	cs := ChangeSet{Changes: changes}
	for _, c := range changes {
		if c.Severity > cs.Overall {
			cs.Overall = c.Severity
		}
	}
	return cs, nil
}

func toTyped(obj *unstructured.Unstructured) (*apiextv1.CustomResourceDefinition, error) {
	out := &apiextv1.CustomResourceDefinition{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, out); err != nil {
		return nil, err
	}
	return out, nil
}

func compareNames(oldCRD, newCRD *apiextv1.CustomResourceDefinition) []Change {
	var out []Change
	on, nn := oldCRD.Spec.Names, newCRD.Spec.Names
	if on.Kind != nn.Kind {
		out = append(out, Change{Path: "spec.names.kind", Kind: nn.Kind, Severity: SeverityDangerous,
			Detail: fmt.Sprintf("kind changed %q -> %q", on.Kind, nn.Kind)})
	}
	if on.Plural != nn.Plural {
		out = append(out, Change{Path: "spec.names.plural", Kind: nn.Kind, Severity: SeverityDangerous,
			Detail: fmt.Sprintf("plural changed %q -> %q", on.Plural, nn.Plural)})
	}
	if on.Singular != nn.Singular {
		out = append(out, Change{Path: "spec.names.singular", Kind: nn.Kind, Severity: SeverityDangerous,
			Detail: fmt.Sprintf("singular changed %q -> %q", on.Singular, nn.Singular)})
	}
	return out
}

func compareScope(oldCRD, newCRD *apiextv1.CustomResourceDefinition) []Change {
	if oldCRD.Spec.Scope != newCRD.Spec.Scope {
		return []Change{{
			Path: "spec.scope", Kind: newCRD.Spec.Names.Kind, Severity: SeverityDangerous,
			Detail: fmt.Sprintf("scope changed %s -> %s", oldCRD.Spec.Scope, newCRD.Spec.Scope),
		}}
	}
	return nil
}

func compareVersions(oldCRD, newCRD *apiextv1.CustomResourceDefinition) []Change {
	var out []Change
	kind := newCRD.Spec.Names.Kind

	oldByName := make(map[string]apiextv1.CustomResourceDefinitionVersion, len(oldCRD.Spec.Versions))
	for _, v := range oldCRD.Spec.Versions {
		oldByName[v.Name] = v
	}
	newByName := make(map[string]apiextv1.CustomResourceDefinitionVersion, len(newCRD.Spec.Versions))
	for _, v := range newCRD.Spec.Versions {
		newByName[v.Name] = v
	}

	for name, ov := range oldByName {
		nv, stillPresent := newByName[name]
		if !stillPresent {
			out = append(out, Change{Path: fmt.Sprintf("spec.versions[%s]", name), Kind: kind,
				Severity: SeverityDangerous, Detail: "version removed"})
			continue
		}
		if ov.Storage && !nv.Storage {
			out = append(out, Change{Path: fmt.Sprintf("spec.versions[%s].storage", name), Kind: kind,
				Severity: SeverityDangerous, Detail: "storage version changed"})
		}
		out = append(out, compareSchema(name, kind, ov, nv)...)
	}
	for name := range newByName {
		if _, existedBefore := oldByName[name]; !existedBefore {
			out = append(out, Change{Path: fmt.Sprintf("spec.versions[%s]", name), Kind: kind,
				Severity: SeveritySafe, Detail: "version added"})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// compareSchema makes a best-effort structural comparison of a version's
// top-level OpenAPI schema properties: new optional fields are Safe; new
// required fields, removed fields and existing optional fields made required
// are Dangerous. Narrowed validation on an existing field (pattern, enum,
// format, bounds) is not examined, so this function never reports Warning.
func compareSchema(versionName, kind string, oldV, newV apiextv1.CustomResourceDefinitionVersion) []Change {
	if oldV.Schema == nil || newV.Schema == nil || oldV.Schema.OpenAPIV3Schema == nil || newV.Schema.OpenAPIV3Schema == nil {
		return nil
	}
	oldProps := oldV.Schema.OpenAPIV3Schema.Properties
	newProps := newV.Schema.OpenAPIV3Schema.Properties
	oldRequired := toSet(oldV.Schema.OpenAPIV3Schema.Required)
	newRequired := toSet(newV.Schema.OpenAPIV3Schema.Required)

	var out []Change
	path := fmt.Sprintf("spec.versions[%s].schema", versionName)

	for field := range newProps {
		if _, existedBefore := oldProps[field]; !existedBefore {
			sev := SeveritySafe
			if newRequired[field] {
				sev = SeverityDangerous
			}
			out = append(out, Change{Path: path + "." + field, Kind: kind, Severity: sev,
				Detail: fmt.Sprintf("field %q added (required=%v)", field, newRequired[field])})
		}
	}
	for field := range oldProps {
		if _, stillPresent := newProps[field]; !stillPresent {
			out = append(out, Change{Path: path + "." + field, Kind: kind, Severity: SeverityDangerous,
				Detail: fmt.Sprintf("field %q removed", field)})
		}
	}
	for field := range newRequired {
		if _, wasRequiredBefore := oldRequired[field]; wasRequiredBefore {
			continue
		}
		if _, existedAsOptionalBefore := oldProps[field]; existedAsOptionalBefore {
			out = append(out, Change{Path: path + "." + field, Kind: kind, Severity: SeverityDangerous,
				Detail: fmt.Sprintf("field %q made required", field)})
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// Decision is the policy verdict for applying a single CRD change.
type Decision string

const (
	DecisionApply   Decision = "Apply"
	DecisionWarn    Decision = "Warn"
	DecisionRefused Decision = "Refused"
)

// Decide turns a ChangeSet's overall severity into an action: Safe applies
// silently, Warning proceeds with a warning, Dangerous is refused unless
// force is set.
func Decide(cs ChangeSet, force bool) Decision {
	switch cs.Overall {
	case SeveritySafe:
		return DecisionApply
	case SeverityWarning:
		return DecisionWarn
	case SeverityDangerous:
		if force {
			return DecisionWarn
		}
		return DecisionRefused
	default:
		return DecisionApply
	}
}

// Policy is the declared lifecycle policy for a CRD: an alias of
// manifest.CRDPolicy, compared against the manifest.CRDPolicy* constants.
type Policy = manifest.CRDPolicy

// AllowInstallOrUpdate reports whether policy permits installing/updating a
// CRD at all.
func AllowInstallOrUpdate(policy Policy) bool {
	return policy == manifest.CRDPolicyManaged || policy == manifest.CRDPolicyShared
}

// AllowDelete reports whether policy permits deleting a CRD on uninstall.
// `shared` CRDs are never deleted by any one release since other releases
// may depend on them; `external` CRDs are never touched at all.
func AllowDelete(policy Policy) bool {
	return policy == manifest.CRDPolicyManaged
}

// WaitEstablished waits for the CRD's Established condition before any
// custom resource of its group/kind may be applied.
func WaitEstablished(ctx context.Context, client *apply.Client, id apply.ResourceID, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		obj, err := client.LiveGet(ctx, id)
		if err == nil && isEstablished(obj) {
			return nil
		}
		select {
		case <-ctx.Done():
			return shiperr.Wrap(shiperr.KindTimeout, fmt.Sprintf("CRD %s did not become Established", id), ctx.Err())
		case <-ticker.C:
		}
	}
}

func isEstablished(obj *unstructured.Unstructured) bool {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return false
	}
	for _, c := range conditions {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if m["type"] == "Established" && m["status"] == "True" {
			return true
		}
	}
	return false
}

// DeleteSafety guards uninstall --delete-crds: a managed CRD with live
// custom-resource instances requires an explicit confirmation token before
// it may be deleted.
func DeleteSafety(liveInstanceCount int, confirmToken string) error {
	if liveInstanceCount == 0 {
		return nil
	}
	if confirmToken == "" {
		return shiperr.New(shiperr.KindCRDDeleteBlocked,
			fmt.Sprintf("%d live custom resource instance(s) exist; confirmation token required to delete CRD", liveInstanceCount))
	}
	return nil
}

// TemplateRestriction reports the severity of a CRD appearing in a template
// source (Warning) versus a dedicated static-CRD directory (Safe). A CRD in
// the static directory that uses template directives is Dangerous and comes
// with an error.
func TemplateRestriction(inStaticCRDDir bool, usesTemplateDirectives bool) (Severity, error) {
	if inStaticCRDDir && usesTemplateDirectives {
		return SeverityDangerous, shiperr.New(shiperr.KindCRDUnsafeChange,
			"template directives are not permitted in the static CRD directory")
	}
	if !inStaticCRDDir {
		return SeverityWarning, nil
	}
	return SeveritySafe, nil
}
