package frame

import (
	"unsafe"
)

// PixelFormat identifies the pixel layout of a captured frame.
type PixelFormat uint32

// Pixel formats.
const (
	FormatUnknown PixelFormat = iota
	FormatNV12                // Y/CbCr 4:2:0, semi-planar
	FormatYUYV                // YUYV 4:2:2 interleaved
	FormatRGB888              // 24-bit RGB
	FormatRGBA8888            // 32-bit RGBA
	FormatMJPEG               // Motion JPEG
	FormatH264                // H.264 encoded
	FormatH265                // H.265 encoded
)

// String returns the conventional name of the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatNV12:
		return "NV12"
	case FormatYUYV:
		return "YUYV"
	case FormatRGB888:
		return "RGB888"
	case FormatRGBA8888:
		return "RGBA8888"
	case FormatMJPEG:
		return "MJPEG"
	case FormatH264:
		return "H264"
	case FormatH265:
		return "H265"
	default:
		return "Unknown"
	}
}

// FrameSize returns the number of bytes one frame of this format needs at
// the given geometry. Compressed formats return a conservative upper bound
// sized for a worst-case intra frame.
func (f PixelFormat) FrameSize(width, height uint32) uint64 {
	w, h := uint64(width), uint64(height)
	switch f {
	case FormatNV12:
		return w * h * 3 / 2
	case FormatYUYV:
		return w * h * 2
	case FormatRGB888:
		return w * h * 3
	case FormatRGBA8888:
		return w * h * 4
	case FormatMJPEG, FormatH264, FormatH265:
		// Worst case assumed to stay under uncompressed 4:2:2.
		return w * h * 2
	default:
		return 0
	}
}

// MemoryType identifies where a frame's backing region lives.
type MemoryType uint32

// Memory types.
const (
	MemoryMmap   MemoryType = iota // V4L2 MMAP buffer
	MemoryDmaBuf                   // DMA-BUF file descriptor
	MemoryShm                      // shared memory
	MemoryHeap                     // process heap
)

// String returns the name of the memory type.
func (m MemoryType) String() string {
	switch m {
	case MemoryMmap:
		return "mmap"
	case MemoryDmaBuf:
		return "dmabuf"
	case MemoryShm:
		return "shm"
	case MemoryHeap:
		return "heap"
	default:
		return "unknown"
	}
}

// MaxPlanes is the largest plane count a descriptor can describe.
const MaxPlanes = 3

// Descriptor fully describes one captured frame: identity, geometry, memory
// layout and backing region. It is plain data, safe to copy, and owns
// nothing; the backing bytes stay valid only for the lifetime of the buffer
// reference the frame was published with.
//
// The field order matches the packed wire layout used across process
// boundaries; Reserved pads the struct for ABI stability.
type Descriptor struct {
	FrameID     uint32
	SourceID    uint32
	TimestampNs uint64

	Width  uint32
	Height uint32
	Format PixelFormat

	PlaneCount  uint32
	LineStride  [MaxPlanes]uint32
	PlaneOffset [MaxPlanes]uint32
	PlaneSize   [MaxPlanes]uint32

	MemoryType MemoryType
	FD         int32
	Ptr        unsafe.Pointer
	RegionSize uint64

	Sequence uint32
	Flags    uint32
	Reserved [56]byte
}

// Valid reports whether the descriptor describes a usable frame.
func (d *Descriptor) Valid() bool {
	if d.Width == 0 || d.Height == 0 || d.Format == FormatUnknown {
		return false
	}
	if d.PlaneCount == 0 || d.PlaneCount > MaxPlanes {
		return false
	}
	if d.RegionSize == 0 {
		return false
	}
	if d.Ptr == nil && d.FD < 0 {
		return false
	}
	for i := uint32(0); i < d.PlaneCount; i++ {
		if uint64(d.PlaneOffset[i])+uint64(d.PlaneSize[i]) > d.RegionSize {
			return false
		}
	}
	return true
}

// PlaneData returns the bytes of one plane, or nil when the plane index is
// out of range or the descriptor has no mapped pointer.
func (d *Descriptor) PlaneData(plane uint32) []byte {
	if plane >= d.PlaneCount || d.Ptr == nil {
		return nil
	}
	if uint64(d.PlaneOffset[plane])+uint64(d.PlaneSize[plane]) > d.RegionSize {
		return nil
	}
	base := unsafe.Add(d.Ptr, uintptr(d.PlaneOffset[plane]))
	return unsafe.Slice((*byte)(base), d.PlaneSize[plane])
}

// Reset zeroes the descriptor. FD is set to -1 so the empty descriptor does
// not accidentally reference stdin.
func (d *Descriptor) Reset() {
	*d = Descriptor{FD: -1}
}

// FillLayout populates PlaneCount, LineStride, PlaneOffset and PlaneSize for
// the descriptor's format and geometry, assuming planes are packed back to
// back from offset 0. Compressed formats are described as a single opaque
// plane of dataSize bytes.
func (d *Descriptor) FillLayout(dataSize uint64) {
	w, h := d.Width, d.Height
	switch d.Format {
	case FormatNV12:
		d.PlaneCount = 2
		d.LineStride = [MaxPlanes]uint32{w, w, 0}
		d.PlaneSize = [MaxPlanes]uint32{w * h, w * h / 2, 0}
		d.PlaneOffset = [MaxPlanes]uint32{0, w * h, 0}
	case FormatYUYV:
		d.PlaneCount = 1
		d.LineStride = [MaxPlanes]uint32{w * 2, 0, 0}
		d.PlaneSize = [MaxPlanes]uint32{w * h * 2, 0, 0}
		d.PlaneOffset = [MaxPlanes]uint32{0, 0, 0}
	case FormatRGB888:
		d.PlaneCount = 1
		d.LineStride = [MaxPlanes]uint32{w * 3, 0, 0}
		d.PlaneSize = [MaxPlanes]uint32{w * h * 3, 0, 0}
		d.PlaneOffset = [MaxPlanes]uint32{0, 0, 0}
	case FormatRGBA8888:
		d.PlaneCount = 1
		d.LineStride = [MaxPlanes]uint32{w * 4, 0, 0}
		d.PlaneSize = [MaxPlanes]uint32{w * h * 4, 0, 0}
		d.PlaneOffset = [MaxPlanes]uint32{0, 0, 0}
	default:
		// Compressed or unknown payloads travel as one opaque plane.
		d.PlaneCount = 1
		d.LineStride = [MaxPlanes]uint32{0, 0, 0}
		d.PlaneSize = [MaxPlanes]uint32{uint32(dataSize), 0, 0}
		d.PlaneOffset = [MaxPlanes]uint32{0, 0, 0}
	}
}
