//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Compile-time struct size assertions. These fail the build if the struct
// layouts drift from what the kernel expects.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Streamparm{})]byte{}
)

// IOCTL request codes for 64-bit architectures.
const (
	vidiocQuerycap  = 0x80685600
	vidiocSFmt      = 0xc0d05605
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0585609
	vidiocQbuf      = 0xc058560f
	vidiocDqbuf     = 0xc0585611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
	vidiocSParm     = 0xc0cc5616
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2PixFormat has size 48 bytes (single-planar).
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format has size 208 bytes; the fmt union is padded past the pix
// member.
type v4l2Format struct {
	typ uint32
	_   [4]byte // union alignment
	pix v4l2PixFormat
	_   [152]byte // rest of the fmt union
}

// v4l2RequestBuffers has size 20 bytes.
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Buffer has size 88 bytes on 64-bit.
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         [4]byte   // align timeval to 8
	tvSec     int64     // struct timeval
	tvUsec    int64
	timecode  [16]byte
	sequence  uint32
	memory    uint32
	m         uint64 // union: offset (mmap) / userptr / fd
	length    uint32
	reserved2 uint32
	requestFD int32
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Streamparm has size 204 bytes; only the capture timeperframe member
// is populated.
type v4l2Streamparm struct {
	typ          uint32
	capability   uint32
	capturemode  uint32
	timeperframe v4l2Fract
	extendedmode uint32
	readbuffers  uint32
	_            [176]byte // rest of the parm union
}
