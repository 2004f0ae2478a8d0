package pointcloud

import (
	"bufio"
	"context"
	"io"
	"math"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/peterdachuan/displaz/pkg/geometry/ply"
)

var errNothingLoaded = errors.New("pointcloud: no file has been loaded")

// ctxCheckInterval is how many records pass between cancellation checks.
const ctxCheckInterval = 4096

// LoadFile reads at most maxVertexCount points from fileName, subsampling
// uniformly when the source is larger. On success the file name, offset,
// centroid and bounding box are published atomically; on error no publicly
// visible state changes.
func (p *PointCloud) LoadFile(ctx context.Context, fileName string, maxVertexCount int) error {
	if maxVertexCount <= 0 {
		return errors.Errorf("pointcloud: vertex budget %d must be positive", maxVertexCount)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.BeginLoad()

	var (
		data *cloudData
		err  error
	)
	if strings.ToLower(filepath.Ext(fileName)) == ".ply" {
		data, err = p.loadPLY(ctx, fileName, maxVertexCount)
	} else {
		data, err = p.loadXYZ(ctx, fileName, maxVertexCount)
	}
	if err != nil {
		return err
	}
	if data.n == 0 {
		return errors.Errorf("pointcloud: no usable points in %s", fileName)
	}

	shufflePositions(data.positions)
	centroid, bbox := data.finish()

	p.mu.Lock()
	p.positions = data.positions
	p.cursor = 0
	p.mu.Unlock()
	p.Commit(fileName, data.offset, centroid, bbox)
	p.Progress(100)
	return nil
}

// cloudData accumulates retained points during a load. The offset is the
// component-wise floor of the first point, so stored float32 residuals stay
// small; centroid and bounds accumulate in the offset-relative frame.
type cloudData struct {
	positions []float32
	offset    v3.Vec
	sum       v3.Vec
	min, max  v3.Vec
	n         int
}

func (c *cloudData) add(x, y, z float64) {
	if c.n == 0 {
		c.offset = v3.Vec{X: math.Floor(x), Y: math.Floor(y), Z: math.Floor(z)}
	}
	rel := v3.Vec{X: x, Y: y, Z: z}.Sub(c.offset)
	if c.n == 0 {
		c.min, c.max = rel, rel
	} else {
		c.min = c.min.Min(rel)
		c.max = c.max.Max(rel)
	}
	c.sum = c.sum.Add(rel)
	c.positions = append(c.positions, float32(rel.X), float32(rel.Y), float32(rel.Z))
	c.n++
}

func (c *cloudData) finish() (centroid v3.Vec, bbox sdf.Box3) {
	if c.n == 0 {
		return v3.Vec{}, sdf.Box3{}
	}
	return c.sum.DivScalar(float64(c.n)), sdf.Box3{Min: c.min, Max: c.max}
}

// shufflePositions permutes point triples with a fixed-seed generator. The
// permutation is deterministic for a given point count, so repeated loads of
// one dataset draw identically.
func shufflePositions(positions []float32) {
	n := len(positions) / 3
	r := mrand.New(mrand.NewPCG(0x9e3779b97f4a7c15, uint64(n)))
	r.Shuffle(n, func(i, j int) {
		for k := 0; k < 3; k++ {
			positions[i*3+k], positions[j*3+k] = positions[j*3+k], positions[i*3+k]
		}
	})
}

// loadXYZ reads whitespace-separated "x y z ..." lines. Malformed lines are
// skipped; the load fails only when nothing usable remains. Two passes: the
// first counts points so the second can subsample to the budget with a
// uniform stride.
func (p *PointCloud) loadXYZ(ctx context.Context, fileName string, budget int) (*cloudData, error) {
	base := filepath.Base(fileName)

	p.StepStarted("scanning " + base)
	total, err := p.countXYZ(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errors.Errorf("pointcloud: no usable points in %s", fileName)
	}

	p.StepStarted("reading points")
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "pointcloud: open")
	}
	defer f.Close()

	stride := (total + budget - 1) / budget
	data := &cloudData{}
	skipped := 0
	valid := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p.Progress(45 + int(54*float64(valid)/float64(total)))
		}
		x, y, z, ok := parseXYZLine(sc.Text())
		if !ok {
			if !isBlankOrComment(sc.Text()) {
				skipped++
			}
			continue
		}
		if valid%stride == 0 && data.n < budget {
			data.add(x, y, z)
		}
		valid++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "pointcloud: read")
	}
	if skipped > 0 {
		logrus.WithFields(logrus.Fields{"file": fileName, "lines": skipped}).
			Warn("skipped malformed point records")
	}
	p.Progress(99)
	return data, nil
}

// countXYZ is the first pass: it counts parseable points, reporting progress
// by bytes consumed.
func (p *PointCloud) countXYZ(ctx context.Context, fileName string) (int, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return 0, errors.Wrap(err, "pointcloud: open")
	}
	defer f.Close()

	size := int64(0)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	cr := &countingReader{r: f}
	sc := bufio.NewScanner(cr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	total := 0
	line := 0
	for sc.Scan() {
		line++
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if size > 0 {
				p.Progress(int(45 * float64(cr.n) / float64(size)))
			}
		}
		if _, _, _, ok := parseXYZLine(sc.Text()); ok {
			total++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, errors.Wrap(err, "pointcloud: read")
	}
	return total, nil
}

func parseXYZLine(line string) (x, y, z float64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, 0, 0, false
	}
	var err error
	if x, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, 0, false
	}
	if y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, 0, false
	}
	if z, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

func isBlankOrComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

// loadPLY reads the vertex element of a point-only (or any) PLY file. The
// header gives the row count up front, so a single pass with a uniform
// stride meets the budget.
func (p *PointCloud) loadPLY(ctx context.Context, fileName string, budget int) (*cloudData, error) {
	p.StepStarted("reading header")
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "pointcloud: open")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := ply.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	total := h.VertexCount()
	if total == 0 {
		return nil, errors.Errorf("pointcloud: no vertex data in %s", fileName)
	}
	p.Progress(5)

	p.StepStarted("reading points")
	stride := (total + budget - 1) / budget
	data := &cloudData{}
	row := 0
	dec := ply.NewDecoder(br, h)
	err = dec.Decode(func(x, y, z float64) error {
		if row%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.Progress(5 + int(94*float64(row)/float64(total)))
		}
		if row%stride == 0 && data.n < budget {
			data.add(x, y, z)
		}
		row++
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	p.Progress(99)
	return data, nil
}

// countingReader tracks bytes consumed, for byte-based progress.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
