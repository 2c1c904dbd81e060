package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// DecodeMedia opens a narration file and picks a decoder from the
// extension. Files with an unknown extension are tried as MP3 first and
// as WAV second, which covers clips downloaded without one.
func DecodeMedia(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	}
	if s, format, err := mp3.Decode(f); err == nil {
		return s, format, nil
	}
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported media %s: %w", filepath.Base(path), err)
	}
	return s, format, nil
}

// GetDuration reports the clip length without going near the speaker.
func GetDuration(path string) (time.Duration, error) {
	s, format, err := DecodeMedia(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return format.SampleRate.D(s.Len()), nil
}
