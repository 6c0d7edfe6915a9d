package camera

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"ridereel/internal/config"
	"ridereel/internal/logging"
)

// Role is the fixed mounting position of a camera.
type Role string

const (
	RoleFront Role = "front"
	RoleRear  Role = "rear"
)

// Canonical camera names.
const (
	Front = "Fly12Sport"
	Rear  = "Fly6Pro"
)

// Camera describes one physical camera.
type Camera struct {
	Name        string
	Role        Role
	Aliases     []string
	Weight      float64
	KnownOffset float64
	AlignOffset float64
}

// DisplayName returns the short label used in overlays and summaries.
func (c Camera) DisplayName() string {
	switch c.Role {
	case RoleFront:
		return "Front"
	case RoleRear:
		return "Rear"
	default:
		return c.Name
	}
}

var builtinAliases = map[string][]string{
	Front: {"Fly12S", "Fly12 Sport", "Fly12-Sport", "FLY12SPORT"},
	Rear:  {"Fly6", "Fly6 Pro", "Fly6-Pro", "FLY6PRO"},
}

// Registry resolves camera names and holds per-camera properties for one
// pipeline run. Lookups are safe for concurrent use; offsets are written once
// per camera by the aligner before any reader stage starts.
type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	cameras map[string]*Camera
	aliases map[string]string
	offsets map[string]bool
}

// NewRegistry builds the registry from camera configuration.
func NewRegistry(cfg config.Cameras, logger *slog.Logger) *Registry {
	r := &Registry{
		logger:  logging.NewComponentLogger(logger, "camera"),
		cameras: make(map[string]*Camera, 2),
		aliases: make(map[string]string),
		offsets: make(map[string]bool, 2),
	}
	for name, role := range map[string]Role{Front: RoleFront, Rear: RoleRear} {
		cam := &Camera{
			Name:    name,
			Role:    role,
			Aliases: append([]string(nil), builtinAliases[name]...),
			Weight:  1.0,
		}
		r.cameras[name] = cam
		r.aliases[r.fold(name)] = name
		for _, alias := range cam.Aliases {
			r.aliases[r.fold(alias)] = name
		}
	}
	for name, weight := range cfg.Weights {
		if cam, ok := r.cameras[r.resolve(name)]; ok {
			cam.Weight = weight
		}
	}
	for name, offset := range cfg.KnownOffsets {
		if cam, ok := r.cameras[r.resolve(name)]; ok {
			cam.KnownOffset = offset
		}
	}
	return r
}

// fold builds a Caser per call; a Caser carries state and is not safe for
// concurrent use.
func (r *Registry) fold(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func (r *Registry) resolve(name string) string {
	if canonical, ok := r.aliases[r.fold(name)]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

// Normalize maps a camera name or alias to its canonical form. Matching is
// case-insensitive. Unknown names are returned unchanged.
func (r *Registry) Normalize(name string) string {
	canonical := r.resolve(name)
	if _, ok := r.cameras[canonical]; !ok && canonical != "" {
		r.logger.Debug("unknown camera name passed through", logging.String(logging.FieldCamera, canonical))
	}
	return canonical
}

// Known reports whether name resolves to one of the two registered cameras.
func (r *Registry) Known(name string) bool {
	_, ok := r.cameras[r.resolve(name)]
	return ok
}

// Get returns a copy of the camera record.
func (r *Registry) Get(name string) (Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.cameras[r.resolve(name)]
	if !ok {
		return Camera{}, false
	}
	out := *cam
	out.Aliases = append([]string(nil), cam.Aliases...)
	return out, true
}

// Names returns the canonical camera names, front first.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.cameras))
	for name := range r.cameras {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.cameras[names[i]].Role == RoleFront && r.cameras[names[j]].Role != RoleFront
	})
	return names
}

// Weight returns the scoring weight for the camera, 1.0 when unknown.
func (r *Registry) Weight(name string) float64 {
	if cam, ok := r.Get(name); ok {
		return cam.Weight
	}
	return 1.0
}

// KnownOffset returns the camera's recording-time bias in seconds, 0 when unknown.
func (r *Registry) KnownOffset(name string) float64 {
	if cam, ok := r.Get(name); ok {
		return cam.KnownOffset
	}
	return 0
}

// Offset returns the alignment offset in seconds, 0 when unknown or not yet aligned.
func (r *Registry) Offset(name string) float64 {
	if cam, ok := r.Get(name); ok {
		return cam.AlignOffset
	}
	return 0
}

// Offsets returns a snapshot of all alignment offsets keyed by canonical name.
func (r *Registry) Offsets() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.cameras))
	for name, cam := range r.cameras {
		out[name] = cam.AlignOffset
	}
	return out
}

// SetOffset records a freshly computed alignment offset. It may be called once
// per camera per run.
func (r *Registry) SetOffset(name string, seconds float64) error {
	canonical := r.resolve(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	cam, ok := r.cameras[canonical]
	if !ok {
		return fmt.Errorf("set offset: unknown camera %q", name)
	}
	if r.offsets[canonical] {
		return fmt.Errorf("set offset: %s already aligned for this run", canonical)
	}
	cam.AlignOffset = seconds
	r.offsets[canonical] = true
	r.logger.Info("camera offset recorded",
		logging.String(logging.FieldCamera, canonical),
		logging.Float64("offset_s", seconds),
	)
	return nil
}

// HasOffset reports whether SetOffset has run for the camera.
func (r *Registry) HasOffset(name string) bool {
	canonical := r.resolve(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offsets[canonical]
}

// Role returns the camera's role, or "" when unknown.
func (r *Registry) Role(name string) Role {
	if cam, ok := r.Get(name); ok {
		return cam.Role
	}
	return ""
}

// Opposite returns the other camera's canonical name, or "" when name is unknown.
func (r *Registry) Opposite(name string) string {
	switch r.Role(name) {
	case RoleFront:
		return Rear
	case RoleRear:
		return Front
	default:
		return ""
	}
}

// DisplayName returns "Front" or "Rear", or the name itself when unknown.
func (r *Registry) DisplayName(name string) string {
	if cam, ok := r.Get(name); ok {
		return cam.DisplayName()
	}
	return name
}
