package trimesh

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/pkg/errors"
)

// binarySTLHeaderSize is the fixed prefix of a binary STL file: an 80 byte
// comment block followed by the uint32 triangle count.
const binarySTLHeaderSize = 84

// binarySTLRecordSize is one binary facet: normal + 3 vertices as float32
// triples, plus a 2 byte attribute count.
const binarySTLRecordSize = 50

// loadSTL reads an STL mesh, sniffing ascii versus binary from the file
// prefix and size.
func (m *TriMesh) loadSTL(ctx context.Context, fileName string) (*meshData, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "trimesh: open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "trimesh: stat")
	}

	prefix := make([]byte, 512)
	n, err := f.Read(prefix)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "trimesh: read")
	}
	prefix = prefix[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "trimesh: seek")
	}

	if isASCIISTL(prefix, fi.Size()) {
		return m.loadASCIISTL(ctx, f, fi.Size())
	}
	return m.loadBinarySTL(ctx, f, fi.Size())
}

// isASCIISTL applies the usual heuristic: ascii files start with "solid"
// and mention "facet" early, and a binary file's size matches its declared
// triangle count exactly.
func isASCIISTL(prefix []byte, size int64) bool {
	if !bytes.HasPrefix(bytes.TrimLeft(prefix, " \t\r\n"), []byte("solid")) {
		return false
	}
	if len(prefix) >= binarySTLHeaderSize {
		count := binary.LittleEndian.Uint32(prefix[80:84])
		if size == binarySTLHeaderSize+int64(count)*binarySTLRecordSize {
			return false
		}
	}
	return bytes.Contains(prefix, []byte("facet"))
}

func (m *TriMesh) loadBinarySTL(ctx context.Context, f *os.File, size int64) (*meshData, error) {
	m.StepStarted("reading triangles")
	br := bufio.NewReader(f)

	header := make([]byte, binarySTLHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "trimesh: truncated STL header")
	}
	count := binary.LittleEndian.Uint32(header[80:84])
	if size != binarySTLHeaderSize+int64(count)*binarySTLRecordSize {
		return nil, errors.Errorf("trimesh: STL size %d does not match %d triangles", size, count)
	}

	md := newMeshData()
	record := make([]byte, binarySTLRecordSize)
	for i := uint32(0); i < count; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if count > 0 {
				m.Progress(int(85 * float64(i) / float64(count)))
			}
		}
		if _, err := io.ReadFull(br, record); err != nil {
			return nil, errors.Wrap(err, "trimesh: truncated STL record")
		}
		// Skip the 12 normal bytes; normals are recomputed from winding.
		a := stlVertex(record[12:24])
		b := stlVertex(record[24:36])
		c := stlVertex(record[36:48])
		md.addTriangle(a, b, c)
	}
	m.Progress(85)
	return md, nil
}

func stlVertex(b []byte) v3.Vec {
	return v3.Vec{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))),
	}
}

func (m *TriMesh) loadASCIISTL(ctx context.Context, f *os.File, size int64) (*meshData, error) {
	m.StepStarted("reading triangles")
	cr := &countingReader{r: f}
	sc := bufio.NewScanner(cr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	md := newMeshData()
	var tri [3]v3.Vec
	have := 0
	line := 0
	for sc.Scan() {
		line++
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if size > 0 {
				m.Progress(int(85 * float64(cr.n) / float64(size)))
			}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 || fields[0] != "vertex" {
			continue
		}
		x, errx := strconv.ParseFloat(fields[1], 64)
		y, erry := strconv.ParseFloat(fields[2], 64)
		z, errz := strconv.ParseFloat(fields[3], 64)
		if errx != nil || erry != nil || errz != nil {
			return nil, errors.Errorf("trimesh: bad STL vertex on line %d", line)
		}
		tri[have] = v3.Vec{X: x, Y: y, Z: z}
		have++
		if have == 3 {
			md.addTriangle(tri[0], tri[1], tri[2])
			have = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "trimesh: read")
	}
	if have != 0 {
		return nil, errors.New("trimesh: truncated STL facet")
	}
	m.Progress(85)
	return md, nil
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
