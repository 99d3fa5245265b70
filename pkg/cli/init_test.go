package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mockidp/mockidp/pkg/config"
)

func TestRunInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "idp.yaml")

	initOutput = out
	initForce = false
	initInteractive = false
	t.Cleanup(func() { initOutput = "idp.yaml" })

	if err := runInit(); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.HasPrefix(string(data), "# mockidp configuration") {
		t.Error("header comment missing")
	}

	settings, err := config.LoadFromFile(out)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if settings.Port != 8080 || settings.AccessTokenExpiry != "1h" {
		t.Errorf("unexpected settings: %+v", settings)
	}

	// A second run without --force must refuse to overwrite.
	if err := runInit(); err == nil {
		t.Error("runInit overwrote an existing file without --force")
	}
}

func TestValidateDuration(t *testing.T) {
	for _, ok := range []string{"30m", "1h", "7d", "90s"} {
		if err := validateDuration(ok); err != nil {
			t.Errorf("validateDuration(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "soon", "10 minutes"} {
		if err := validateDuration(bad); err == nil {
			t.Errorf("validateDuration(%q) accepted", bad)
		}
	}
}
