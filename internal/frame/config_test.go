package frame

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Valid() {
		t.Fatal("expected default config to be valid")
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("unexpected geometry %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Format != FormatNV12 || cfg.FPS != 30 || cfg.BufferCount != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	base := DefaultConfig()

	cases := []struct {
		name   string
		mutate func(*CaptureConfig)
	}{
		{"zero width", func(c *CaptureConfig) { c.Width = 0 }},
		{"zero height", func(c *CaptureConfig) { c.Height = 0 }},
		{"unknown format", func(c *CaptureConfig) { c.Format = FormatUnknown }},
		{"zero fps", func(c *CaptureConfig) { c.FPS = 0 }},
		{"one buffer", func(c *CaptureConfig) { c.BufferCount = 1 }},
		{"nine buffers", func(c *CaptureConfig) { c.BufferCount = 9 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if cfg.Valid() {
				t.Error("expected invalid config")
			}
		})
	}

	for count := uint32(MinBufferCount); count <= MaxBufferCount; count++ {
		cfg := base
		cfg.BufferCount = count
		if !cfg.Valid() {
			t.Errorf("expected %d buffers to be valid", count)
		}
	}
}

func TestConfigBufferSize(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.BufferSize(); got != 1920*1080*3/2 {
		t.Errorf("unexpected buffer size %d", got)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]PixelFormat{
		"nv12":    FormatNV12,
		"NV12":    FormatNV12,
		"yuyv":    FormatYUYV,
		"rgb888":  FormatRGB888,
		"rgba":    FormatRGBA8888,
		"mjpeg":   FormatMJPEG,
		"h264":    FormatH264,
		"hevc":    FormatH265,
		"bogus":   FormatUnknown,
		"":        FormatUnknown,
	}
	for in, want := range cases {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q): expected %s, got %s", in, want, got)
		}
	}
}
