package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path"

	"github.com/carenod/timecourse-for-raspi/internal/models"
	"github.com/carenod/timecourse-for-raspi/internal/storage"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

// WriteZip streams a session's manifest plus every captured frame into
// w. Gap markers appear in the manifest only; they have no file.
func WriteZip(w io.Writer, frames *store.Store, sessionID string) error {
	records, err := frames.List(sessionID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	manifest, err := json.MarshalIndent(models.Manifest{SessionID: sessionID, Frames: records}, "", "  ")
	if err != nil {
		return err
	}
	mf, err := zw.Create("manifest.json")
	if err != nil {
		return err
	}
	if _, err := mf.Write(manifest); err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Gap {
			continue
		}
		if err := addFile(zw, rec); err != nil {
			return err
		}
	}
	return nil
}

func addFile(zw *zip.Writer, rec models.Frame) error {
	f, err := os.Open(rec.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(path.Join("frames", fmt.Sprintf("frame_%06d.jpg", rec.Sequence)))
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

// Transfer copies a session's manifest and frames to an archive
// provider (USB mount or S3 bucket). All or nothing: a failure mid-way
// removes the keys already written so the target never holds a torn
// archive. Returns how many frames moved.
func Transfer(p storage.Provider, frames *store.Store, s models.Session) (int, error) {
	records, err := frames.List(s.ID)
	if err != nil {
		return 0, err
	}

	prefix := s.Name + "_" + shortID(s.ID)

	var uploaded []string
	put := func(key string, body io.ReadSeeker, contentType string) error {
		if err := p.Put(key, body, contentType); err != nil {
			return err
		}
		uploaded = append(uploaded, key)
		return nil
	}
	rollback := func() {
		for _, key := range uploaded {
			if derr := p.Delete(key); derr != nil {
				log.Printf("⚠️ Rollback: failed to delete %s: %v", key, derr)
			}
		}
	}

	manifest, err := json.MarshalIndent(models.Manifest{SessionID: s.ID, Frames: records}, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := put(path.Join(prefix, "manifest.json"), bytes.NewReader(manifest), "application/json"); err != nil {
		return 0, err
	}

	moved := 0
	for _, rec := range records {
		if rec.Gap {
			continue
		}

		f, err := os.Open(rec.Path)
		if err != nil {
			rollback()
			return 0, err
		}

		key := path.Join(prefix, "frames", fmt.Sprintf("frame_%06d.jpg", rec.Sequence))
		err = put(key, f, "image/jpeg")
		f.Close()
		if err != nil {
			rollback()
			return 0, err
		}
		moved++
	}

	log.Printf("📦 Session %s archived: %d frames → %s", s.ID, moved, prefix)
	return moved, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
