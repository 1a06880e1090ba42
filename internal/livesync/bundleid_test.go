package livesync

import (
	"os"
	"path/filepath"
	"testing"
)

const infoPlistXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.demo</string>
</dict>
</plist>
`

func TestReadBundleID(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "Demo.app")
	if err := os.MkdirAll(appPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(appPath, "Info.plist"), []byte(infoPlistXML), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := ReadBundleID(appPath)
	if err != nil {
		t.Fatalf("ReadBundleID: %v", err)
	}
	if id != "com.example.demo" {
		t.Fatalf("got %q, want com.example.demo", id)
	}
}

func TestReadBundleIDMissingFile(t *testing.T) {
	if _, err := ReadBundleID(t.TempDir()); err == nil {
		t.Fatal("expected an error for a missing Info.plist")
	}
}
