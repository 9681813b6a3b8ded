package dcgan_go

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(cfg *Config)
		want   error
	}{
		{"mode", func(cfg *Config) { cfg.Mode = "serve" }, ErrInvalidConfig},
		{"latent", func(cfg *Config) { cfg.LatentDim = 0 }, ErrInvalidConfig},
		{"batch of one", func(cfg *Config) { cfg.BatchSize = 1 }, ErrInvalidConfig},
		{"gen updates", func(cfg *Config) { cfg.NumGenUpdates = 0 }, ErrInvalidConfig},
		{"image size", func(cfg *Config) { cfg.ImageSize = 60 }, ErrInvalidConfig},
		{"learn rate", func(cfg *Config) { cfg.LearnRate = -1 }, ErrInvalidConfig},
		{"beta1", func(cfg *Config) { cfg.Beta1 = 1 }, ErrInvalidConfig},
		{"leaky slope", func(cfg *Config) { cfg.LeakyAlpha = 1.5 }, ErrInvalidConfig},
		{"device", func(cfg *Config) { cfg.Device = "GPU:0" }, ErrInvalidDevice},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, c.want) {
				t.Errorf("Error should be %v, but got %v", c.want, err)
			}
		})
	}
}

func TestParseDevice(t *testing.T) {
	valid := []string{"CPU:0", "cpu:0", "/device:CPU:0", " CPU:0 "}
	for _, s := range valid {
		d, err := ParseDevice(s)
		if err != nil {
			t.Errorf("'%s' should be valid, but got %s", s, err)
			continue
		}
		if d.Kind != DeviceCPU || d.Index != 0 {
			t.Errorf("'%s' should be parsed as CPU:0, but got %s", s, d)
		}
	}
	invalid := []string{"", "CPU", "CPU:1", "GPU:0", "/device:GPU:1", "TPU:0", "CPU:-1", "CPU:x"}
	for _, s := range invalid {
		if _, err := ParseDevice(s); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("'%s' should give ErrInvalidDevice, but got %v", s, err)
		}
	}
}
