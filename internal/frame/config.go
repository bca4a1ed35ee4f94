package frame

// Capture buffer count bounds. The device queue needs at least two buffers
// to ping-pong; more than eight only adds latency.
const (
	MinBufferCount = 2
	MaxBufferCount = 8
)

// CaptureConfig describes the capture geometry a source is opened with.
type CaptureConfig struct {
	Width       uint32      `toml:"width"`
	Height      uint32      `toml:"height"`
	Format      PixelFormat `toml:"format"`
	FPS         uint32      `toml:"fps"`
	BufferCount uint32      `toml:"buffer_count"`
}

// Valid reports whether the configuration can drive a capture source.
func (c CaptureConfig) Valid() bool {
	return c.Width > 0 && c.Height > 0 &&
		c.Format != FormatUnknown &&
		c.FPS > 0 &&
		c.BufferCount >= MinBufferCount && c.BufferCount <= MaxBufferCount
}

// BufferSize returns the pool region size the configuration needs.
func (c CaptureConfig) BufferSize() uint64 {
	return c.Format.FrameSize(c.Width, c.Height)
}

// DefaultConfig returns 1080p NV12 at 30 fps with four buffers.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		Width:       1920,
		Height:      1080,
		Format:      FormatNV12,
		FPS:         30,
		BufferCount: 4,
	}
}

// ParseFormat maps a configuration string to a PixelFormat.
// Unrecognized names map to FormatUnknown.
func ParseFormat(name string) PixelFormat {
	switch name {
	case "nv12", "NV12":
		return FormatNV12
	case "yuyv", "YUYV":
		return FormatYUYV
	case "rgb", "rgb888", "RGB888":
		return FormatRGB888
	case "rgba", "rgba8888", "RGBA8888":
		return FormatRGBA8888
	case "mjpeg", "MJPEG", "mjpg":
		return FormatMJPEG
	case "h264", "H264":
		return FormatH264
	case "h265", "H265", "hevc":
		return FormatH265
	default:
		return FormatUnknown
	}
}
