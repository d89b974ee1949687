package media

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChunk(buf *bytes.Buffer, chunkType string, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.WriteString(chunkType)
	buf.Write(data)
	buf.Write([]byte{0, 0, 0, 0}) // CRC is not verified
}

func buildPNG(chunks ...func(*bytes.Buffer)) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	writeChunk(&buf, "IHDR", make([]byte, 13))
	for _, c := range chunks {
		c(&buf)
	}
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func TestReadFaceMeta(t *testing.T) {
	header := []byte("dfl_header\x00{\"face_type\":\"whole_face\",\"yaw\":-12.5,\"pitch\":3.25,\"source_filename\":\"take1.mp4\",\"source_width\":1920,\"source_height\":1080}")

	png := buildPNG(
		func(b *bytes.Buffer) { writeChunk(b, "tEXt", []byte("Software\x00extractor")) },
		func(b *bytes.Buffer) { writeChunk(b, "tEXt", header) },
	)

	path := filepath.Join(t.TempDir(), "face_000123_0.png")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	meta, err := ReadFaceMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "whole_face", meta.FaceType)
	require.NotNil(t, meta.Yaw)
	assert.InDelta(t, -12.5, *meta.Yaw, 0.001)
	require.NotNil(t, meta.Pitch)
	assert.InDelta(t, 3.25, *meta.Pitch, 0.001)
	assert.Equal(t, "take1.mp4", meta.SourceFilename)
	assert.Equal(t, 1920, meta.SourceWidth)
	assert.Equal(t, 1080, meta.SourceHeight)
}

func TestReadFaceMeta_NoHeader(t *testing.T) {
	png := buildPNG(
		func(b *bytes.Buffer) { writeChunk(b, "tEXt", []byte("Comment\x00plain png")) },
	)

	path := filepath.Join(t.TempDir(), "plain.png")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	_, err := ReadFaceMeta(path)
	assert.ErrorIs(t, err, ErrNoFaceMeta)
}

func TestReadFaceMeta_NotPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.png")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := ReadFaceMeta(path)
	assert.Error(t, err)
}
