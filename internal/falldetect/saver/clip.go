package saver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"io"
	"os"

	"github.com/your-org/falldetect/internal/falldetect/config"
)

// writeClip encodes an event's raw (pre-blur) frames as a motion-JPEG
// AVI under the event layout's fixed clip.mp4 name. Without an
// ffmpeg/cgo video encoder in this process, MJPEG-in-AVI is the
// nearest container expressible with the JPEG encoder already in use;
// the file name stays clip.mp4 because downstream consumers key on it.
func writeClip(path string, frames []FrameToSave, clip config.VideoClipConfig, quality int) error {
	fps := clip.FPS
	if fps < 1 {
		fps = 15
	}
	if quality < 1 || quality > 100 {
		quality = 90
	}
	if clip.MaxSeconds > 0 {
		if max := int(clip.MaxSeconds * float64(fps)); max > 1 && len(frames) > max {
			frames = frames[:max]
		}
	}
	if len(frames) < 2 {
		return fmt.Errorf("clip needs at least 2 frames, have %d", len(frames))
	}

	bounds := frames[0].Frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	encoded := make([][]byte, 0, len(frames))
	for _, fr := range frames {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, fr.Frame, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode clip frame: %w", err)
		}
		encoded = append(encoded, buf.Bytes())
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return writeAVI(f, encoded, width, height, fps)
}

const (
	aviMainHeaderLen   = 56
	aviStreamHeaderLen = 56
	aviBitmapInfoLen   = 40
	avifHasIndex       = 0x00000010
	aviifKeyframe      = 0x00000010
)

// writeAVI emits a single-video-stream RIFF AVI holding the given
// pre-encoded JPEG frames as MJPG "00dc" chunks, with an idx1 index so
// players can seek.
func writeAVI(w io.Writer, frames [][]byte, width, height, fps int) error {
	// Chunk payloads are padded to even length per RIFF.
	pad := func(n int) int { return n & 1 }

	moviDataSize := 4 // the "movi" fourcc
	for _, fr := range frames {
		moviDataSize += 8 + len(fr) + pad(len(fr))
	}
	idx1Size := 16 * len(frames)

	strlSize := 4 + (8 + aviStreamHeaderLen) + (8 + aviBitmapInfoLen)
	hdrlSize := 4 + (8 + aviMainHeaderLen) + (8 + strlSize)
	riffSize := 4 + (8 + hdrlSize) + (8 + moviDataSize) + (8 + idx1Size)

	var buf bytes.Buffer
	u32 := func(v uint32) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	u16 := func(v uint16) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	fourcc := func(s string) {
		buf.WriteString(s)
	}

	fourcc("RIFF")
	u32(uint32(riffSize))
	fourcc("AVI ")

	fourcc("LIST")
	u32(uint32(hdrlSize))
	fourcc("hdrl")

	fourcc("avih")
	u32(aviMainHeaderLen)
	u32(uint32(1000000 / fps)) // microseconds per frame
	u32(0)                     // max bytes per second, unconstrained
	u32(0)                     // padding granularity
	u32(avifHasIndex)
	u32(uint32(len(frames)))
	u32(0) // initial frames
	u32(1) // stream count
	u32(0) // suggested buffer size
	u32(uint32(width))
	u32(uint32(height))
	u32(0)
	u32(0)
	u32(0)
	u32(0)

	fourcc("LIST")
	u32(uint32(strlSize))
	fourcc("strl")

	fourcc("strh")
	u32(aviStreamHeaderLen)
	fourcc("vids")
	fourcc("MJPG")
	u32(0) // flags
	u16(0) // priority
	u16(0) // language
	u32(0) // initial frames
	u32(1) // scale
	u32(uint32(fps))
	u32(0) // start
	u32(uint32(len(frames)))
	u32(0)          // suggested buffer size
	u32(0xFFFFFFFF) // quality: driver default
	u32(0)          // sample size: varies per frame
	u16(0)          // rcFrame
	u16(0)
	u16(uint16(width))
	u16(uint16(height))

	fourcc("strf")
	u32(aviBitmapInfoLen)
	u32(aviBitmapInfoLen)
	u32(uint32(width))
	u32(uint32(height))
	u16(1)  // planes
	u16(24) // bits per pixel
	fourcc("MJPG")
	u32(uint32(width * height * 3)) // image size
	u32(0)
	u32(0)
	u32(0)
	u32(0)

	fourcc("LIST")
	u32(uint32(moviDataSize))
	fourcc("movi")

	// idx1 offsets point at each chunk's fourcc, relative to the
	// "movi" fourcc position.
	offsets := make([]uint32, 0, len(frames))
	offset := uint32(4)
	for _, fr := range frames {
		offsets = append(offsets, offset)
		fourcc("00dc")
		u32(uint32(len(fr)))
		buf.Write(fr)
		if pad(len(fr)) == 1 {
			buf.WriteByte(0)
		}
		offset += uint32(8 + len(fr) + pad(len(fr)))
	}

	fourcc("idx1")
	u32(uint32(idx1Size))
	for i, fr := range frames {
		fourcc("00dc")
		u32(aviifKeyframe)
		u32(offsets[i])
		u32(uint32(len(fr)))
	}

	_, err := w.Write(buf.Bytes())
	return err
}
