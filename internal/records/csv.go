package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"ridereel/internal/fileutil"
)

// EncodeFrames writes frames with the stage's header.
func EncodeFrames(w io.Writer, stage Stage, frames []Frame) error {
	return encode(w, stage.columns(), frames)
}

// DecodeFrames reads frames from r. Unknown columns are ignored and absent
// ones keep their zero value, so a selection file can be read as analysis
// input and vice versa.
func DecodeFrames(r io.Reader) ([]Frame, error) {
	return decode(r, selectionColumns)
}

// WriteFrames atomically replaces path with the encoded frames.
func WriteFrames(path string, stage Stage, frames []Frame) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		return EncodeFrames(w, stage, frames)
	})
}

// ReadFrames loads a frame record file.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	frames, err := DecodeFrames(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return frames, nil
}

// EncodeTrack writes the 1 Hz GPS timeline.
func EncodeTrack(w io.Writer, points []TrackPoint) error {
	return encode(w, trackColumns, points)
}

// DecodeTrack reads a GPS timeline.
func DecodeTrack(r io.Reader) ([]TrackPoint, error) {
	return decode(r, trackColumns)
}

// WriteTrack atomically replaces path with the encoded timeline. An empty
// timeline still produces a header-only file.
func WriteTrack(path string, points []TrackPoint) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		return EncodeTrack(w, points)
	})
}

// ReadTrack loads a GPS timeline file.
func ReadTrack(path string) ([]TrackPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, err := DecodeTrack(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return points, nil
}

func encode[T any](w io.Writer, cols []column[T], rows []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(names(cols)); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for i := range rows {
		for c, col := range cols {
			record[c] = col.get(&rows[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decode[T any](r io.Reader, cols []column[T]) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	byName := make(map[string]column[T], len(cols))
	for _, col := range cols {
		byName[col.name] = col
	}
	mapped := make([]*column[T], len(header))
	for i, name := range header {
		if col, ok := byName[name]; ok {
			mapped[i] = &col
		}
	}

	var out []T
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		var item T
		for i, value := range record {
			if i >= len(mapped) || mapped[i] == nil {
				continue
			}
			if err := mapped[i].set(&item, value); err != nil {
				return nil, columnError(row, mapped[i].name, err)
			}
		}
		out = append(out, item)
	}
	return out, nil
}
