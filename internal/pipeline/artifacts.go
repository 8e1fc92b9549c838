package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifacts names every file a run keeps under <workdir>/<video_id>/.
type artifacts struct {
	dir    string
	id     string
	target string
}

func newArtifacts(workDir, videoID, target string) artifacts {
	return artifacts{dir: filepath.Join(workDir, videoID), id: videoID, target: target}
}

func (a artifacts) path(suffix string) string {
	return filepath.Join(a.dir, a.id+suffix)
}

func (a artifacts) Raw() string          { return a.path(".raw.srt") }
func (a artifacts) Clean() string        { return a.path(".clean.srt") }
func (a artifacts) Sentences() string    { return a.path(".sent.srt") }
func (a artifacts) Translated() string   { return a.path("." + a.target + ".srt") }
func (a artifacts) Bilingual() string    { return a.path(".bi.srt") }
func (a artifacts) BilingualVTT() string { return a.path(".bi.vtt") }
func (a artifacts) Record() string       { return a.path(".run.json") }
func (a artifacts) Lock() string         { return filepath.Join(a.dir, ".lock") }

// removeFinal deletes outputs that may only exist after a successful run.
func (a artifacts) removeFinal() error {
	var errs []error
	for _, p := range []string{a.Bilingual(), a.BilingualVTT()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record is the <id>.run.json diagnostic written at every transition.
type Record struct {
	RunID      string        `json:"run_id"`
	VideoID    string        `json:"video_id"`
	AudioPath  string        `json:"audio_path"`
	SourceLang string        `json:"source_lang"`
	TargetLang string        `json:"target_lang"`
	State      State         `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Stages     []StageRecord `json:"stages"`
	// DegradedSeqs lists translated cues that fell back to source text.
	DegradedSeqs []int    `json:"degraded_seqs,omitempty"`
	Rows         int      `json:"rows,omitempty"`
	Published    []string `json:"published,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
}

// ReadRecord loads a run record; a missing file is returned as fs.ErrNotExist.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse run record %s: %w", path, err)
	}
	return &rec, nil
}

// RecordPath returns where the run record of a video lives.
func RecordPath(workDir, videoID string) string {
	return newArtifacts(workDir, videoID, "").Record()
}

func writeRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace run record: %w", err)
	}
	return nil
}

// CheckVideoID rejects ids that cannot name a work directory.
func CheckVideoID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("video id is required")
	case id == "." || id == "..":
		return fmt.Errorf("invalid video id %q", id)
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0):
		return fmt.Errorf("video id %q must not contain path separators", id)
	}
	return nil
}
