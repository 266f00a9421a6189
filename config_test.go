package rebind

import (
	"os"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REBIND_MAX_REBINDINGS", "10")
	t.Setenv("REBIND_PROTECT_CONST", "false")
	t.Setenv("REBIND_DEBUG", "true")

	config, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	expected := Config{MaxRebindings: 10, ProtectConst: false, Debug: true}
	if config != expected {
		t.Errorf("Expected %+v but got %+v", expected, config)
	}
}

func TestConfigDefaults(t *testing.T) {
	for _, name := range []string{"REBIND_MAX_REBINDINGS", "REBIND_PROTECT_CONST", "REBIND_DEBUG"} {
		if _, ok := os.LookupEnv(name); ok {
			t.Skipf("%v is set in the environment", name)
		}
	}

	config, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if config != DefaultConfig() {
		t.Errorf("Expected %+v but got %+v", DefaultConfig(), config)
	}
}

func TestConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("REBIND_MAX_REBINDINGS", "lots")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("Expected an error")
	}
}
