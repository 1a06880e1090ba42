package livesync

import "testing"

func TestRegistryInstalledLifecycle(t *testing.T) {
	r := NewRegistry()
	dev := Device{ID: "dev-1", Platform: PlatformIOS, IsSimulator: true}

	if installed, _ := r.Installed(dev); installed {
		t.Fatal("expected a fresh device to report not installed")
	}

	r.MarkInstalled(dev, "com.example.app")
	installed, bundleID := r.Installed(dev)
	if !installed || bundleID != "com.example.app" {
		t.Fatalf("got installed=%v bundleID=%q", installed, bundleID)
	}

	r.Forget(dev)
	if installed, _ := r.Installed(dev); installed {
		t.Fatal("expected Forget to clear the installed state")
	}
}
