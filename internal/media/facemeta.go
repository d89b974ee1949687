package media

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// FaceMeta is the header embedded in aligned face PNGs by extraction
// pipelines.
type FaceMeta struct {
	FaceType       string   `json:"face_type,omitempty"`
	Pitch          *float64 `json:"pitch,omitempty"`
	Yaw            *float64 `json:"yaw,omitempty"`
	Roll           *float64 `json:"roll,omitempty"`
	Sharpness      *float64 `json:"sharpness,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
	SourceFilepath string   `json:"source_filepath,omitempty"`
	SourceWidth    int      `json:"source_width,omitempty"`
	SourceHeight   int      `json:"source_height,omitempty"`
}

// ErrNoFaceMeta means the PNG carries no recognized face header.
var ErrNoFaceMeta = errors.New("media: no face metadata in png")

// ReadFaceMeta scans the chunks of a PNG file for a tEXt chunk keyed
// "dfl_header" and decodes its JSON payload. Returns ErrNoFaceMeta when the
// file is a valid PNG without such a chunk.
func ReadFaceMeta(path string) (*FaceMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readFaceMeta(f)
}

func readFaceMeta(r io.Reader) (*FaceMeta, error) {
	sig := make([]byte, 8)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("media: not a png file")
	}

	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrNoFaceMeta
			}
			return nil, err
		}
		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])

		if chunkType == "IEND" {
			return nil, ErrNoFaceMeta
		}

		if chunkType != "tEXt" {
			// Skip chunk data plus CRC
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return nil, err
			}
			continue
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}

		meta, ok := parseDFLText(data)
		if ok {
			return meta, nil
		}
	}
}

// parseDFLText splits a tEXt chunk into key and value and decodes the value
// when the key is dfl_header.
func parseDFLText(data []byte) (*FaceMeta, bool) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return nil, false
	}
	if string(data[:idx]) != "dfl_header" {
		return nil, false
	}

	var meta FaceMeta
	if err := json.Unmarshal(data[idx+1:], &meta); err != nil {
		return nil, false
	}
	return &meta, true
}
