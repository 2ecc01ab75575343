package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/shipctl/internal/dependency"
)

func TestDigestIsStableAndPrefixed(t *testing.T) {
	d1 := Digest([]byte("hello"))
	d2 := Digest([]byte("hello"))
	assert.Equal(t, d1, d2)
	assert.Contains(t, d1, "sha256:")
	assert.NotEqual(t, d1, Digest([]byte("world")))
}

func TestBuildWalksGraphAndComputesDigests(t *testing.T) {
	graph := &dependency.Graph{
		Roots: []*dependency.Node{
			{
				Name: "app", Repository: "repo1", PackName: "app", Version: "1.0.0",
				Children: []*dependency.Node{
					{Name: "redis", Repository: "repo1", PackName: "redis", Version: "6.0.0"},
				},
			},
		},
	}

	l, err := Build(graph, "sha256:abc", PolicyStrict, func(n *dependency.Node) (string, error) {
		return Digest([]byte(n.Name + n.Version)), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", l.PackSourceDigest)
	require.Len(t, l.Dependencies, 1)
	assert.Equal(t, "app", l.Dependencies[0].Name)
	require.Len(t, l.Dependencies[0].Children, 1)
	assert.Equal(t, "redis", l.Dependencies[0].Children[0].Name)
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	l := &Lock{
		ManifestVersion:  manifestVersion,
		PackSourceDigest: "sha256:abc",
		Policy:           PolicyStrict,
		Dependencies: []Dependency{
			{Name: "redis", ResolvedVersion: "6.0.0", Repository: "repo1", Digest: "sha256:def"},
		},
	}
	data, err := Encode(l)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, l.PackSourceDigest, decoded.PackSourceDigest)
	require.Len(t, decoded.Dependencies, 1)
	assert.Equal(t, "redis", decoded.Dependencies[0].Name)
}

func TestVerifySourceDetectsOutdated(t *testing.T) {
	l := &Lock{PackSourceDigest: "sha256:abc"}
	assert.NoError(t, VerifySource(l, "sha256:abc"))
	assert.ErrorIs(t, VerifySource(l, "sha256:changed"), ErrOutdated)
}

func TestVerifyArtifactMatchingDigestAlwaysOK(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("payload"))}
	result, err := VerifyArtifact(entry, PolicyStrict, []byte("payload"), "6.0.0")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Nil(t, result.Rewritten)
}

func TestVerifyArtifactStrictRejectsMismatch(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("original"))}
	_, err := VerifyArtifact(entry, PolicyStrict, []byte("tampered"), "6.0.0")
	assert.Error(t, err)
}

func TestVerifyArtifactVersionPolicyWarnsButPasses(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("original"))}
	result, err := VerifyArtifact(entry, PolicyVersion, []byte("changed"), "6.0.0")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotEmpty(t, result.Warning)
}

func TestVerifyArtifactSemverPatchAcceptsPatchBump(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("v6.0.0"))}
	result, err := VerifyArtifact(entry, PolicySemverPatch, []byte("v6.0.1"), "6.0.1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.NotNil(t, result.Rewritten)
	assert.Equal(t, "6.0.1", result.Rewritten.ResolvedVersion)
}

func TestVerifyArtifactSemverPatchRejectsMinorBump(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("v6.0.0"))}
	_, err := VerifyArtifact(entry, PolicySemverPatch, []byte("v6.1.0"), "6.1.0")
	assert.Error(t, err)
}

func TestVerifyArtifactSemverMinorAcceptsMinorBump(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("v6.0.0"))}
	result, err := VerifyArtifact(entry, PolicySemverMinor, []byte("v6.1.0"), "6.1.0")
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.NotNil(t, result.Rewritten)
	assert.Equal(t, "6.1.0", result.Rewritten.ResolvedVersion)
}

func TestVerifyArtifactSemverMinorRejectsMajorBump(t *testing.T) {
	entry := Dependency{Name: "redis", ResolvedVersion: "6.0.0", Digest: Digest([]byte("v6.0.0"))}
	_, err := VerifyArtifact(entry, PolicySemverMinor, []byte("v7.0.0"), "7.0.0")
	assert.Error(t, err)
}
