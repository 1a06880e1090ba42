package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-saito/nsbuild/internal/filestore"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileChangeRequiresBuildManifestAlwaysTrue(t *testing.T) {
	root := t.TempDir()
	c := &Classifier{Store: filestore.New()}
	got, err := c.FileChangeRequiresBuild(filepath.Join(root, "package.json"), root)
	if err != nil {
		t.Fatalf("FileChangeRequiresBuild: %v", err)
	}
	if !got {
		t.Fatal("expected true for an edited package.json")
	}
}

func TestFileChangeRequiresBuildUnderPlatformsWithFramework(t *testing.T) {
	root := t.TempDir()
	pkgRoot := filepath.Join(root, "node_modules", "some-plugin")
	writeFile(t, filepath.Join(pkgRoot, "package.json"), `{"version":"1.0.0","nativescript":{"id":"x"}}`)
	edited := filepath.Join(pkgRoot, "platforms", "ios", "Plugin.swift")
	writeFile(t, edited, "class Plugin {}")

	c := &Classifier{Store: filestore.New()}
	got, err := c.FileChangeRequiresBuild(edited, root)
	if err != nil {
		t.Fatalf("FileChangeRequiresBuild: %v", err)
	}
	if !got {
		t.Fatal("expected true for an edit under a framework package's platforms/ subtree")
	}
}

func TestFileChangeRequiresBuildSkipsTnsCoreModules(t *testing.T) {
	root := t.TempDir()
	pkgRoot := filepath.Join(root, "node_modules", "tns-core-modules")
	writeFile(t, filepath.Join(pkgRoot, "package.json"), `{"version":"1.0.0","nativescript":{"id":"x"}}`)
	edited := filepath.Join(pkgRoot, "platforms", "ios", "Core.swift")
	writeFile(t, edited, "class Core {}")

	c := &Classifier{Store: filestore.New()}
	got, err := c.FileChangeRequiresBuild(edited, root)
	if err != nil {
		t.Fatalf("FileChangeRequiresBuild: %v", err)
	}
	if got {
		t.Fatal("tns-core-modules edits must never force a build")
	}
}

func TestFileChangeRequiresBuildNonFrameworkPackageFalse(t *testing.T) {
	root := t.TempDir()
	pkgRoot := filepath.Join(root, "node_modules", "plain-lib")
	writeFile(t, filepath.Join(pkgRoot, "package.json"), `{"version":"1.0.0"}`)
	edited := filepath.Join(pkgRoot, "platforms", "ios", "whatever.swift")
	writeFile(t, edited, "class Whatever {}")

	c := &Classifier{Store: filestore.New()}
	got, err := c.FileChangeRequiresBuild(edited, root)
	if err != nil {
		t.Fatalf("FileChangeRequiresBuild: %v", err)
	}
	if got {
		t.Fatal("expected false when the owning package declares no framework marker")
	}
}

func TestFileChangeRequiresBuildOrdinaryAppEditFalse(t *testing.T) {
	root := t.TempDir()
	edited := filepath.Join(root, "app", "main.js")
	writeFile(t, edited, "console.log(1)")

	c := &Classifier{Store: filestore.New()}
	got, err := c.FileChangeRequiresBuild(edited, root)
	if err != nil {
		t.Fatalf("FileChangeRequiresBuild: %v", err)
	}
	if got {
		t.Fatal("ordinary app script edits must not force a build")
	}
}

func TestShouldBuildWhenLivesyncing(t *testing.T) {
	stamp := "t0"
	cases := []struct {
		name string
		d    BuildDecision
		want bool
	}{
		{
			name: "prepare matches latest build, no build needed",
			d:    BuildDecision{PrepareTime: "t1", LatestBuildTime: "t1"},
			want: false,
		},
		{
			name: "no stamp, relies solely on changes summary (true)",
			d:    BuildDecision{PrepareTime: "t1", LatestBuildTime: "t0", ChangesRequireBuild: true},
			want: true,
		},
		{
			name: "no stamp, relies solely on changes summary (false)",
			d:    BuildDecision{PrepareTime: "t1", LatestBuildTime: "t0", ChangesRequireBuild: false},
			want: false,
		},
		{
			name: "stamp equals prepare time, device already absorbed it",
			d:    BuildDecision{PrepareTime: stamp, LatestBuildTime: "t2", LiveSyncStamp: &stamp, ChangesRequireBuild: true},
			want: false,
		},
		{
			name: "stamp differs and changes summary requires build",
			d:    BuildDecision{PrepareTime: "t1", LatestBuildTime: "t0", LiveSyncStamp: &stamp, ChangesRequireBuild: true},
			want: true,
		},
		{
			name: "stamp differs but changes summary does not require build",
			d:    BuildDecision{PrepareTime: "t1", LatestBuildTime: "t0", LiveSyncStamp: &stamp, ChangesRequireBuild: false},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldBuildWhenLivesyncing(tc.d); got != tc.want {
				t.Fatalf("ShouldBuildWhenLivesyncing(%+v) = %v, want %v", tc.d, got, tc.want)
			}
		})
	}
}
