package result

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/signalnine/toolsgen/internal/llm"
)

const (
	TrainFile    = "train.jsonl"
	ValFile      = "val.jsonl"
	FailuresFile = "failures.jsonl"
	ManifestFile = "manifest.json"
	MetricsFile  = "metrics.prom"
)

// Writer persists outcomes as they are emitted in task order. Accepted
// records are appended to train.jsonl immediately and flushed, so a crash
// leaves every line written so far intact.
type Writer struct {
	dir      string
	train    *os.File
	trainBuf *bufio.Writer
	fail     *os.File
	failBuf  *bufio.Writer

	generated int
	failed    int
	reasons   map[Reason]int
	usage     map[llm.Role]llm.Usage
}

// Create prepares dir for a new run, truncating earlier output.
func Create(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	for _, stale := range []string{ValFile, ManifestFile} {
		if err := os.Remove(filepath.Join(dir, stale)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale %s: %w", stale, err)
		}
	}
	train, err := os.Create(filepath.Join(dir, TrainFile))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", TrainFile, err)
	}
	fail, err := os.Create(filepath.Join(dir, FailuresFile))
	if err != nil {
		train.Close()
		return nil, fmt.Errorf("creating %s: %w", FailuresFile, err)
	}
	return &Writer{
		dir:      dir,
		train:    train,
		trainBuf: bufio.NewWriter(train),
		fail:     fail,
		failBuf:  bufio.NewWriter(fail),
		reasons:  make(map[Reason]int),
		usage:    make(map[llm.Role]llm.Usage),
	}, nil
}

// RecordID formats the identifier of the record produced by a task.
func RecordID(taskIndex int) string {
	return fmt.Sprintf("record_%06d", taskIndex)
}

// Emit writes one outcome. It must be called in ascending task order, so
// record IDs, which carry the task index, increase down the file and skip
// the tasks that failed.
func (w *Writer) Emit(o Outcome) error {
	for role, u := range o.Usage {
		total := w.usage[role]
		total.Add(u)
		w.usage[role] = total
	}
	switch {
	case o.Record != nil:
		o.Record.ID = RecordID(o.Index)
		if err := appendLine(w.trainBuf, o.Record); err != nil {
			return fmt.Errorf("writing record %d: %w", o.Index, err)
		}
		w.generated++
	case o.Failure != nil:
		if err := appendLine(w.failBuf, o.Failure); err != nil {
			return fmt.Errorf("writing failure %d: %w", o.Index, err)
		}
		w.failed++
		w.reasons[o.Failure.Reason]++
	default:
		return fmt.Errorf("task %d: outcome has neither record nor failure", o.Index)
	}
	return nil
}

func appendLine(buf *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := buf.Write(data); err != nil {
		return err
	}
	return buf.Flush()
}

func (w *Writer) Generated() int { return w.generated }
func (w *Writer) Failed() int    { return w.failed }

// Close flushes and closes the open files. It is safe to call twice.
func (w *Writer) Close() error {
	var errs []error
	if w.train != nil {
		errs = append(errs, w.trainBuf.Flush(), w.train.Close())
		w.train = nil
	}
	if w.fail != nil {
		errs = append(errs, w.failBuf.Flush(), w.fail.Close())
		w.fail = nil
	}
	return errors.Join(errs...)
}

// Finalize closes the writer, moves the tail of train.jsonl into val.jsonl
// according to m.TrainSplit and writes manifest.json. Counts, splits and usage
// in m are filled in from what was actually written.
func (w *Writer) Finalize(m *Manifest) error {
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	trainN := TrainCount(m.TrainSplit, w.generated)
	if err := SplitFile(w.dir, trainN); err != nil {
		return err
	}
	m.Version = ManifestVersion
	m.NumGenerated = w.generated
	m.NumFailed = w.failed
	m.Splits = Splits{Train: trainN, Val: w.generated - trainN}
	if len(w.reasons) > 0 {
		m.Failures = w.reasons
	}
	if len(w.usage) > 0 {
		m.Usage = w.usage
	}
	return WriteManifest(w.dir, m)
}

// TrainCount is floor(p*m), with p clamped to [0, 1].
func TrainCount(p float64, m int) int {
	if p >= 1 {
		return m
	}
	if p <= 0 {
		return 0
	}
	n := int(math.Floor(p*float64(m) + 1e-9))
	if n > m {
		n = m
	}
	return n
}

// SplitFile keeps the first trainN lines of train.jsonl and moves the rest to
// val.jsonl, streaming line by line. No val.jsonl is created when nothing
// moves, and a partial val.jsonl is removed if the split fails.
func SplitFile(dir string, trainN int) (err error) {
	trainPath := filepath.Join(dir, TrainFile)
	valPath := filepath.Join(dir, ValFile)

	src, err := os.Open(trainPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", TrainFile, err)
	}
	defer src.Close()

	tmpPath := trainPath + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating split file: %w", err)
	}
	defer os.Remove(tmpPath)

	var val *os.File
	valClosed, tmpClosed := false, false
	defer func() {
		if err == nil {
			return
		}
		if !tmpClosed {
			tmp.Close()
		}
		if val != nil {
			if !valClosed {
				val.Close()
			}
			os.Remove(valPath)
		}
	}()

	var valBuf *bufio.Writer
	trainBuf := bufio.NewWriter(tmp)
	r := bufio.NewReader(src)
	for n := 0; ; n++ {
		line, rerr := r.ReadBytes('\n')
		if len(line) > 0 {
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			dst := trainBuf
			if n >= trainN {
				if val == nil {
					if val, err = os.Create(valPath); err != nil {
						val = nil
						return fmt.Errorf("creating %s: %w", ValFile, err)
					}
					valBuf = bufio.NewWriter(val)
				}
				dst = valBuf
			}
			if _, err = dst.Write(line); err != nil {
				return fmt.Errorf("splitting records: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", TrainFile, rerr)
		}
	}

	if val != nil {
		err = errors.Join(valBuf.Flush(), val.Close())
		valClosed = true
		if err != nil {
			return fmt.Errorf("writing %s: %w", ValFile, err)
		}
	}
	err = errors.Join(trainBuf.Flush(), tmp.Close())
	tmpClosed = true
	if err != nil {
		return fmt.Errorf("writing %s: %w", TrainFile, err)
	}
	if err = os.Rename(tmpPath, trainPath); err != nil {
		return fmt.Errorf("replacing %s: %w", TrainFile, err)
	}
	return nil
}

func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644)
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// ReadFailures loads failures.jsonl. A missing file yields no failures.
func ReadFailures(path string) ([]Failure, error) {
	var out []Failure
	err := eachLine(path, func(_ int, line []byte) error {
		var f Failure
		if err := json.Unmarshal(line, &f); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

// EachRecord streams the records of a JSONL file to fn with 1-based line numbers.
func EachRecord(path string, fn func(line int, rec *Record) error) error {
	return eachLine(path, func(n int, line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		return fn(n, &rec)
	})
}

func eachLine(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, err := r.ReadBytes('\n')
		if trimmed := trimNewline(line); len(trimmed) > 0 {
			if ferr := fn(n, trimmed); ferr != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), ferr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// SortedReasons lists failure reasons by descending count, then name.
func SortedReasons(counts map[Reason]int) []Reason {
	reasons := make([]Reason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}
