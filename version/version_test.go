package version

import "testing"

func TestGetBuildInfoNeverReturnsNil(t *testing.T) {
	info := GetBuildInfo()
	if info == nil {
		t.Fatal("GetBuildInfo returned nil")
	}
	if info.GoVersion == "" {
		t.Error("expected a non-empty GoVersion")
	}
}

func TestGetModuleVersionReturnsNonEmpty(t *testing.T) {
	if v := GetModuleVersion(); v == "" {
		t.Error("expected a non-empty version string")
	}
}

func TestGetDependencyUnknownModuleReturnsNil(t *testing.T) {
	if dep := GetDependency("this.module/does-not-exist"); dep != nil {
		t.Errorf("expected nil for unknown module, got %+v", dep)
	}
}
