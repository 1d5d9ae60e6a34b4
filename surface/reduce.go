package surface

import (
	"math"
	"sort"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/task"
)

// DefaultClusterFactor is the cluster cell size as a multiple of the mean
// edge length.
const DefaultClusterFactor = 2.0

// pollEvery is how many triangles are processed between cancellation checks.
const pollEvery = 4096

// ClusterReducer simplifies by vertex clustering: vertices are snapped to a
// grid whose cell is Factor times the mean edge length, each cluster is
// replaced by its centroid and triangles that collapse are dropped.
type ClusterReducer struct {
	Factor float64
}

type cell struct{ x, y, z int64 }

type cluster struct {
	sum model.Vec3
	n   int
	id  int
}

// Reduce implements Reducer. c may be nil.
func (r ClusterReducer) Reduce(c task.Canceller, tris []Triangle) ([]Triangle, error) {
	if len(tris) == 0 {
		return tris, nil
	}
	factor := r.Factor
	if factor <= 0 {
		factor = DefaultClusterFactor
	}

	var total float64
	for _, t := range tris {
		total += t[1].Sub(t[0]).Length() + t[2].Sub(t[1]).Length() + t[0].Sub(t[2]).Length()
	}
	size := factor * total / float64(3*len(tris))
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return tris, nil
	}

	key := func(v model.Vec3) cell {
		return cell{
			int64(math.Floor(v.X / size)),
			int64(math.Floor(v.Y / size)),
			int64(math.Floor(v.Z / size)),
		}
	}

	clusters := make(map[cell]*cluster)
	indexed := make([][3]*cluster, len(tris))
	for i, t := range tris {
		if c != nil && i%pollEvery == 0 && c.ShouldQuit() {
			return nil, task.ErrInterrupted
		}
		for j, v := range t {
			k := key(v)
			cl, ok := clusters[k]
			if !ok {
				cl = &cluster{id: len(clusters)}
				clusters[k] = cl
			}
			cl.sum = cl.sum.Add(v)
			cl.n++
			indexed[i][j] = cl
		}
	}

	seen := make(map[[3]int]struct{}, len(tris))
	out := make([]Triangle, 0, len(tris)/2)
	for i, idx := range indexed {
		if c != nil && i%pollEvery == 0 && c.ShouldQuit() {
			return nil, task.ErrInterrupted
		}
		a, b, d := idx[0], idx[1], idx[2]
		if a == b || b == d || a == d {
			continue
		}
		ids := []int{a.id, b.id, d.id}
		sort.Ints(ids)
		k := [3]int{ids[0], ids[1], ids[2]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		tri := Triangle{centroid(a), centroid(b), centroid(d)}
		if tri.Area() == 0 {
			continue
		}
		out = append(out, tri)
	}
	return out, nil
}

func centroid(c *cluster) model.Vec3 {
	return c.sum.Scale(1 / float64(c.n))
}
