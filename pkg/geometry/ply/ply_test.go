package ply

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const asciiMesh = `ply
format ascii 1.0
comment made by hand
element vertex 4
property float x
property float y
property float z
element face 2
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
1 1 0
0 1 0
3 0 1 2
3 0 2 3
`

func TestReadHeaderASCII(t *testing.T) {
	h, err := ReadHeader(bufio.NewReader(strings.NewReader(asciiMesh)))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Format != FormatASCII {
		t.Errorf("format = %v, want ascii", h.Format)
	}
	if h.VertexCount() != 4 {
		t.Errorf("vertex count = %d, want 4", h.VertexCount())
	}
	if !h.HasFaces() {
		t.Error("HasFaces should be true")
	}
	el := h.Element("face")
	if el == nil || len(el.Properties) != 1 || !el.Properties[0].List {
		t.Fatalf("face element = %+v", el)
	}
	if el.Properties[0].CountType != "uchar" || el.Properties[0].Type != "int" {
		t.Errorf("face list property = %+v", el.Properties[0])
	}
}

func TestDecodeASCII(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(asciiMesh))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}

	var verts [][3]float64
	var faces [][]int
	err = NewDecoder(r, h).Decode(
		func(x, y, z float64) error {
			verts = append(verts, [3]float64{x, y, z})
			return nil
		},
		func(idx []int) error {
			faces = append(faces, append([]int(nil), idx...))
			return nil
		})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(verts) != 4 {
		t.Fatalf("verts = %d, want 4", len(verts))
	}
	if verts[2] != [3]float64{1, 1, 0} {
		t.Errorf("verts[2] = %v", verts[2])
	}
	if len(faces) != 2 || len(faces[0]) != 3 || faces[1][2] != 3 {
		t.Errorf("faces = %v", faces)
	}
}

func binaryPoints(t *testing.T, pts [][3]float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("ply\nformat binary_little_endian 1.0\n")
	buf.WriteString("element vertex " + strconv.Itoa(len(pts)) + "\n")
	buf.WriteString("property float x\nproperty float y\nproperty float z\nend_header\n")
	for _, p := range pts {
		for _, v := range p {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			buf.Write(b[:])
		}
	}
	return buf.Bytes()
}

func TestDecodeBinary(t *testing.T) {
	data := binaryPoints(t, [][3]float32{{1, 2, 3}, {4, 5, 6}})
	r := bufio.NewReader(bytes.NewReader(data))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	if h.Format != FormatBinaryLE {
		t.Fatalf("format = %v, want binary_little_endian", h.Format)
	}

	var verts [][3]float64
	err = NewDecoder(r, h).Decode(func(x, y, z float64) error {
		verts = append(verts, [3]float64{x, y, z})
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(verts) != 2 || verts[1] != [3]float64{4, 5, 6} {
		t.Errorf("verts = %v", verts)
	}
}

func TestDecodeTruncatedBinary(t *testing.T) {
	data := binaryPoints(t, [][3]float32{{1, 2, 3}, {4, 5, 6}})
	data = data[:len(data)-5] // cut into the last vertex
	r := bufio.NewReader(bytes.NewReader(data))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	err = NewDecoder(r, h).Decode(func(x, y, z float64) error { return nil }, nil)
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestReadHeaderRejectsBigEndian(t *testing.T) {
	in := "ply\nformat binary_big_endian 1.0\nend_header\n"
	_, err := ReadHeader(bufio.NewReader(strings.NewReader(in)))
	if err == nil {
		t.Fatal("expected error for big endian format")
	}
}

func TestReadHeaderRejectsMissingMagic(t *testing.T) {
	_, err := ReadHeader(bufio.NewReader(strings.NewReader("not a ply\n")))
	if err == nil {
		t.Fatal("expected error for missing magic")
	}
}

func TestSniff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.ply")
	if err := os.WriteFile(path, []byte(asciiMesh), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := Sniff(path)
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if !h.HasFaces() {
		t.Error("sniffed header should report faces")
	}
}

func TestDecodeSkipsUnknownElement(t *testing.T) {
	in := `ply
format ascii 1.0
element camera 1
property float cx
property float cy
element vertex 1
property float x
property float y
property float z
end_header
0.5 0.5
7 8 9
`
	r := bufio.NewReader(strings.NewReader(in))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	var got [3]float64
	err = NewDecoder(r, h).Decode(func(x, y, z float64) error {
		got = [3]float64{x, y, z}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != [3]float64{7, 8, 9} {
		t.Errorf("vertex = %v, want (7,8,9)", got)
	}
}
