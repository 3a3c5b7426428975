package docmodule

import "testing"

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	prev := globalRegistry
	globalRegistry = newRegistry()
	return func() { globalRegistry = prev }
}

func noopBuild(Deps) (Components, error) { return Components{}, nil }

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(ModuleMetadata{Key: "github", Build: noopBuild}); err != nil {
		t.Fatalf("register github failed: %v", err)
	}
	if err := Register(ModuleMetadata{Key: "gems", Build: noopBuild}); err != nil {
		t.Fatalf("register gems failed: %v", err)
	}

	if _, ok := Resolve("GEMS"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}

	list := List()
	if len(list) != 2 {
		t.Fatalf("list length mismatch: %d", len(list))
	}
	if list[0].Key != "gems" || list[1].Key != "github" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if keys := Keys(); len(keys) != 2 || keys[0] != "gems" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(ModuleMetadata{Key: "gems", Build: noopBuild}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(ModuleMetadata{Key: "gems", Build: noopBuild}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestRegisterRequiresKeyAndBuild(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(ModuleMetadata{Key: " ", Build: noopBuild}); err == nil {
		t.Fatalf("empty key should fail")
	}
	if err := Register(ModuleMetadata{Key: "gems"}); err == nil {
		t.Fatalf("missing build should fail")
	}
}
