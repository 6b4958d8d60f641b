package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
)

const indexFile = "segments.json"

// segment describes one sealed journal file.
type segment struct {
	ID       int    `json:"id"`
	File     string `json:"file"`
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"last_seq"`
	SealedAt string `json:"sealed_at"`
}

// appendSegment adds one entry to the JSON-lines index.
func appendSegment(dir string, s segment) error {
	f, err := os.OpenFile(filepath.Join(dir, indexFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// loadSegments reads the index; a missing file means no sealed segments yet.
func loadSegments(dir string) ([]segment, error) {
	f, err := os.Open(filepath.Join(dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []segment
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s segment
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

func lastSegment(dir string) (*segment, error) {
	segs, err := loadSegments(dir)
	if err != nil || len(segs) == 0 {
		return nil, err
	}
	return &segs[len(segs)-1], nil
}
