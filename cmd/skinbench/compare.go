package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/tabwriter"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrMismatch is returned when a backend disagrees with the sequential reference.
var ErrMismatch = errors.New("skinbench: backend output differs from sequential")

func defaultWorkers() int {
	return runtime.NumCPU() - 1
}

// maxRelativeError returns the largest per-component difference between got and want, relative
// to the magnitude of want and never below the absolute difference for components under 1.
func maxRelativeError(got, want []mgl32.Vec3) (float64, error) {
	if len(got) != len(want) {
		return 0, fmt.Errorf("%w: %d positions, want %d", ErrMismatch, len(got), len(want))
	}
	var worst float64
	for i := range want {
		for c := range 3 {
			diff := float64(got[i][c] - want[i][c])
			if diff < 0 {
				diff = -diff
			}
			scale := float64(want[i][c])
			if scale < 0 {
				scale = -scale
			}
			worst = max(worst, diff/max(1, scale))
		}
	}
	return worst, nil
}

// positionsOf reads the deformed positions of sk. GPU output is read back from the software
// device; ok is false when it cannot be read on the host.
func positionsOf(sk skinner.Skinner, device gpu.Device) (positions []mgl32.Vec3, ok bool, err error) {
	if sk.BackendType() != skinner.BackendTypeGPU {
		return sk.Output().Positions(), true, nil
	}
	soft, isSoft := device.(*gpu.SoftDevice)
	if !isSoft {
		return nil, false, nil
	}
	data, err := soft.ReadBuffer(sk.MeshBuffers().Position)
	if err != nil {
		return nil, false, err
	}
	return common.BytesToVec3s(data), true, nil
}

// compareScenes checks every scene against the sequential scene, object by object. Scenes are
// built from the same meshes in the same order, so objects pair up by position.
func compareScenes(scenes []scene.Scene, device gpu.Device, tolerance float64, l *log.Logger) error {
	ref := slices.IndexFunc(scenes, func(s scene.Scene) bool {
		return s.Backend() == skinner.BackendTypeSequential
	})
	if ref < 0 {
		l.Debug("no sequential scene, skipping comparison")
		return nil
	}
	refIDs := scenes[ref].IDs()

	var errs []error
	for i, s := range scenes {
		if i == ref {
			continue
		}
		ids := s.IDs()
		if len(ids) != len(refIDs) {
			errs = append(errs, fmt.Errorf("%w: scene %s has %d objects, want %d", ErrMismatch, s.Name(), len(ids), len(refIDs)))
			continue
		}
		for o := range ids {
			want := scenes[ref].Get(refIDs[o]).Output().Positions()
			sk := s.Get(ids[o])
			got, ok, err := positionsOf(sk, device)
			if err != nil {
				errs = append(errs, fmt.Errorf("read %s output: %w", s.Name(), err))
				continue
			}
			if !ok {
				l.Info("output not readable on the host, skipping comparison", "backend", s.Backend())
				continue
			}
			worst, err := maxRelativeError(got, want)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			l.Info("compared with sequential", "backend", s.Backend(), "mesh", sk.Mesh().Name(), "max_error", worst)
			if worst > tolerance {
				errs = append(errs, fmt.Errorf("%w: %s mesh %s error %g > %g", ErrMismatch, s.Backend(), sk.Mesh().Name(), worst, tolerance))
			}
		}
	}
	return errors.Join(errs...)
}

// writeSummary prints one row per recorded timing, sorted by name.
func writeSummary(w io.Writer, summary map[string]profiler.Timing) {
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "backend\tframes\tmean\tmax\ttotal")
	for _, name := range names {
		t := summary[name]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", name, t.Count, t.Mean(), t.Max, t.Total)
	}
	tw.Flush()
}
