package analyze

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"ridereel/internal/services"
)

// cocoNames maps the COCO class ids a detector may report to names.
var cocoNames = map[int]string{
	0: "person",
	1: "bicycle",
	2: "car",
	3: "motorcycle",
	5: "bus",
	7: "truck",
}

// Label is a detector class, reported either as a COCO id or a name.
type Label string

// UnmarshalJSON accepts numbers and strings.
func (l *Label) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*l = Label(strings.ToLower(strings.TrimSpace(name)))
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("detector class %s: %w", data, err)
	}
	if name, ok := cocoNames[id]; ok {
		*l = Label(name)
		return nil
	}
	*l = Label(strconv.Itoa(id))
	return nil
}

// Box is one detected object.
type Box struct {
	Class      Label   `json:"class"`
	Confidence float64 `json:"conf"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
}

// Area is Width × Height in source pixels.
func (b Box) Area() float64 {
	return max(0, b.Width) * max(0, b.Height)
}

// Detection is the detector's answer for one image.
type Detection struct {
	Path  string `json:"path"`
	Boxes []Box  `json:"boxes"`
	Error string `json:"error,omitempty"`
}

// Detector runs object detection over image files. Load must succeed before
// Detect; Close releases the model and is safe to call more than once.
type Detector interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, paths []string) ([]Detection, error)
	Close() error
}

// CommandDetector drives a long-running detector process that reads one image
// path per stdin line and answers with one JSON object per stdout line. A
// process that breaks the protocol is killed and restarted on the next batch.
type CommandDetector struct {
	Command string
	Args    []string

	mu     sync.Mutex // guards the process and serializes exchanges
	loaded bool
	proc   *detectorProcess
}

type detectorProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// NewCommandDetector builds an adapter for command.
func NewCommandDetector(command string, args []string) *CommandDetector {
	return &CommandDetector{Command: strings.TrimSpace(command), Args: append([]string(nil), args...)}
}

// Load starts the detector process. Calling Load on a loaded detector is a no-op.
func (d *CommandDetector) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}
	if d.Command == "" {
		return services.Wrap(services.ErrDegraded, "analyze", "load detector", "no detector command configured", nil)
	}
	proc, err := d.start(ctx)
	if err != nil {
		return services.Wrap(services.ErrDegraded, "analyze", "load detector", "start "+d.Command, err)
	}
	d.proc = proc
	d.loaded = true
	return nil
}

func (d *CommandDetector) start(ctx context.Context) (*detectorProcess, error) {
	cmd := exec.CommandContext(ctx, d.Command, d.Args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("detector stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("detector stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &detectorProcess{cmd: cmd, stdin: stdin, reader: bufio.NewReaderSize(stdout, 256*1024)}, nil
}

// Detect sends paths as one batch and collects one answer per path. Answers
// may arrive in any order; they are returned in request order. A path listed
// twice is answered twice.
func (d *CommandDetector) Detect(ctx context.Context, paths []string) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, errors.New("detector not loaded")
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.proc == nil {
		proc, err := d.start(context.WithoutCancel(ctx))
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "analyze", "detect", "restart "+d.Command, err)
		}
		d.proc = proc
	}
	out, err := d.proc.exchange(paths)
	if err != nil {
		d.proc.kill()
		d.proc = nil
		return nil, err
	}
	return out, nil
}

func (p *detectorProcess) exchange(paths []string) ([]Detection, error) {
	var request strings.Builder
	slots := make(map[string][]int, len(paths))
	for i, path := range paths {
		request.WriteString(path)
		request.WriteByte('\n')
		slots[path] = append(slots[path], i)
	}
	if _, err := io.WriteString(p.stdin, request.String()); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analyze", "detect", "write batch", err)
	}

	out := make([]Detection, len(paths))
	for answered := 0; answered < len(paths); {
		line, err := p.reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var det Detection
			if jsonErr := json.Unmarshal(line, &det); jsonErr != nil {
				return nil, services.Wrap(services.ErrExternalTool, "analyze", "detect", "decode response", jsonErr)
			}
			answered++
			if queue := slots[det.Path]; len(queue) > 0 {
				out[queue[0]] = det
				slots[det.Path] = queue[1:]
			}
		}
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "analyze", "detect",
				fmt.Sprintf("read response (%d/%d answered)", answered, len(paths)), err)
		}
	}
	for i, path := range paths {
		out[i].Path = path
	}
	return out, nil
}

func (p *detectorProcess) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// Close stops the detector process.
func (d *CommandDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	if d.proc == nil {
		return nil
	}
	proc := d.proc
	d.proc = nil
	_ = proc.stdin.Close()
	if err := proc.cmd.Wait(); err != nil {
		return fmt.Errorf("detector exit: %w", err)
	}
	return nil
}

// DetectionScore summarizes boxes for configured classes.
type DetectionScore struct {
	Score    float64
	Count    int
	BBoxArea float64
}

// Scorer reduces raw boxes to a frame score.
type Scorer struct {
	Classes       map[string]bool
	ClassWeights  map[string]float64
	MinConfidence float64
}

// NewScorer builds a Scorer; classes missing from weights weigh 1.0.
func NewScorer(classes []string, weights map[string]float64, minConfidence float64) Scorer {
	set := make(map[string]bool, len(classes))
	for _, c := range classes {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return Scorer{Classes: set, ClassWeights: w, MinConfidence: minConfidence}
}

// Score is max(conf × class weight) over matching boxes, with the count and
// largest area of the matching boxes.
func (s Scorer) Score(det Detection) DetectionScore {
	var out DetectionScore
	for _, box := range det.Boxes {
		class := string(box.Class)
		if !s.Classes[class] || box.Confidence < s.MinConfidence {
			continue
		}
		weight := 1.0
		if w, ok := s.ClassWeights[class]; ok {
			weight = w
		}
		out.Score = max(out.Score, box.Confidence*weight)
		out.BBoxArea = max(out.BBoxArea, box.Area())
		out.Count++
	}
	return out
}
