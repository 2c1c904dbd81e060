package probe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/acurth/audioguia/pkg/audio"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
	"github.com/acurth/audioguia/pkg/wakelock"
)

// DataDirWritable verifies the data directory accepts writes.
func DataDirWritable(dir string) Probe {
	return Probe{
		Name: "data dir writable",
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			marker := filepath.Join(dir, ".probe")
			if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
				return err
			}
			return os.Remove(marker)
		},
	}
}

// DatabaseRoundTrip writes, reads back and deletes one client-state row.
func DatabaseRoundTrip(st store.StateStore) Probe {
	return Probe{
		Name:     "database round-trip",
		Critical: true,
		Check: func(ctx context.Context) error {
			const key = "probe_roundtrip"
			stamp := time.Now().Format(time.RFC3339Nano)
			if err := st.SetState(ctx, key, stamp); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			got, ok := st.GetState(ctx, key)
			if !ok || got != stamp {
				return fmt.Errorf("read back %q, want %q", got, stamp)
			}
			return st.DeleteState(ctx, key)
		},
	}
}

// ToursReadable verifies the tours directory can be listed. A missing
// directory passes; the registry treats that as an empty library.
func ToursReadable(dir string) Probe {
	return Probe{
		Name:     "tours dir readable",
		Critical: true,
		Check: func(ctx context.Context) error {
			_, err := os.ReadDir(dir)
			if os.IsNotExist(err) {
				return nil
			}
			return err
		},
	}
}

// TourResolves checks that the library holds at least one tour and that it
// resolves by id. An empty library is survivable: tours can still arrive
// through the download pipeline.
func TourResolves(reg *tour.Registry) Probe {
	return Probe{
		Name: "tour resolves",
		Check: func(ctx context.Context) error {
			tours := reg.List()
			if len(tours) == 0 {
				return errors.New("tour library is empty")
			}
			_, err := reg.Get(tours[0].ID)
			return err
		},
	}
}

// AudioDecode decodes a generated clip through the same path narration
// takes. It exercises the decoder only, never the sound device.
func AudioDecode(tmpDir string) Probe {
	return Probe{
		Name: "audio decode",
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(tmpDir, 0o755); err != nil {
				return err
			}
			clip := filepath.Join(tmpDir, "probe_clip.wav")
			if err := os.WriteFile(clip, silentWAV(8000, 800), 0o644); err != nil {
				return err
			}
			defer os.Remove(clip)
			s, _, err := audio.DecodeMedia(clip)
			if err != nil {
				return err
			}
			return s.Close()
		},
	}
}

// WakeLockAvailable acquires and immediately releases the platform lock.
func WakeLockAvailable(lock *wakelock.Manager) Probe {
	return Probe{
		Name: "wake lock",
		Check: func(ctx context.Context) error {
			lock.Acquire("startup probe")
			if !lock.Held() {
				return wakelock.ErrUnsupported
			}
			lock.Release()
			return nil
		},
	}
}

// silentWAV renders n samples of 16-bit mono PCM silence as a complete
// RIFF/WAVE file.
func silentWAV(sampleRate, n int) []byte {
	dataLen := n * 2
	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
