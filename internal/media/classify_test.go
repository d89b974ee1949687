package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExt(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/footage/A001_C003.MOV", KindVideo},
		{"/footage/interview.mxf", KindVideo},
		{"/footage/take1.R3D", KindVideo},
		{"/stills/slate.jpg", KindImage},
		{"/stills/plate_0001.exr", KindImage},
		{"/stills/scan.dpx", KindImage},
		{"/audio/boom.WAV", KindAudio},
		{"/meta/config.json", KindSidecar},
		{"/meta/cut.edl", KindSidecar},
		{"/notes/readme.txt", KindOther},
		{"/bin/render", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyExt(tt.path))
		})
	}
}

func TestNeedsProxy(t *testing.T) {
	assert.True(t, NeedsProxy("prores"))
	assert.True(t, NeedsProxy("ProRes"))
	assert.True(t, NeedsProxy("mpeg2video"))
	assert.False(t, NeedsProxy("h264"))
	assert.False(t, NeedsProxy("vp9"))
	assert.False(t, NeedsProxy(""))
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "application/mxf", MIMEType("clip.mxf"))
	assert.Equal(t, "image/x-exr", MIMEType("plate.EXR"))
	assert.Contains(t, MIMEType("photo.jpg"), "image/jpeg")
	assert.Empty(t, MIMEType("mystery.zzz"))
}
