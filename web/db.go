package web

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type dbFileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// handleSnapshot copies the live database to the fixed snapshot file
// and serves the copy, so the live file is never handed out directly
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	livePath := s.cfg.Rotator.LivePath()
	snapshotPath := s.cfg.Rotator.SnapshotPath()

	if err := copyFile(livePath, snapshotPath); err != nil {
		s.logger.Error("failed to snapshot live database", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="ais_snapshot.db"`)
	http.ServeFile(w, r, snapshotPath)
}

// handleFiles lists the database files in the storage directory,
// newest first
func (s *Server) handleFiles(w http.ResponseWriter, _ *http.Request) {
	dir := filepath.Dir(s.cfg.Rotator.LivePath())
	matches, err := filepath.Glob(filepath.Join(dir, "*.db"))
	if err != nil {
		s.logger.Error("failed to list database files", "error", err)
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}

	files := make([]dbFileInfo, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, dbFileInfo{
			Name:     filepath.Base(path),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(files); err != nil {
		s.logger.Warn("failed to write file listing", "error", err)
	}
}

// handleDownload serves one rotated-out database file by name. The live
// database is only available through the snapshot endpoint.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(name, ".db") {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}
	if name == filepath.Base(s.cfg.Rotator.LivePath()) {
		http.Error(w, "live database cannot be downloaded", http.StatusForbidden)
		return
	}

	path := filepath.Join(filepath.Dir(s.cfg.Rotator.LivePath()), name)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// copyFile writes src to dst through a temp file in the same directory
// so a failed copy never leaves a truncated snapshot behind
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
