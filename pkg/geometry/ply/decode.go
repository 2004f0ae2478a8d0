package ply

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Decoder reads element bodies following a parsed header.
type Decoder struct {
	h  *Header
	r  *bufio.Reader
	bf [8]byte
}

// NewDecoder returns a decoder for a body positioned right after the header
// that h was parsed from.
func NewDecoder(r *bufio.Reader, h *Header) *Decoder {
	return &Decoder{h: h, r: r}
}

// Decode walks all elements in file order. Vertex rows are delivered to
// onVertex as (x, y, z); face rows to onFace as vertex indices. Elements
// without a callback, and elements other than vertex and face, are decoded
// and discarded. A callback error aborts the walk.
func (d *Decoder) Decode(onVertex func(x, y, z float64) error, onFace func(indices []int) error) error {
	for _, el := range d.h.Elements {
		switch {
		case el.Name == "vertex" && onVertex != nil:
			if err := d.decodeVertices(el, onVertex); err != nil {
				return err
			}
		case el.Name == "face" && onFace != nil:
			if err := d.decodeFaces(el, onFace); err != nil {
				return err
			}
		default:
			if err := d.skipElement(el); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) decodeVertices(el Element, onVertex func(x, y, z float64) error) error {
	xi, yi, zi := -1, -1, -1
	for i, p := range el.Properties {
		if p.List {
			continue
		}
		switch p.Name {
		case "x":
			xi = i
		case "y":
			yi = i
		case "z":
			zi = i
		}
	}
	if xi < 0 || yi < 0 || zi < 0 {
		return errors.New("ply: vertex element lacks x/y/z properties")
	}

	row := make([]float64, len(el.Properties))
	for n := 0; n < el.Count; n++ {
		if err := d.readRow(el, row, nil); err != nil {
			return err
		}
		if err := onVertex(row[xi], row[yi], row[zi]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) decodeFaces(el Element, onFace func(indices []int) error) error {
	li := -1
	for i, p := range el.Properties {
		if p.List && (p.Name == "vertex_indices" || p.Name == "vertex_index") {
			li = i
			break
		}
	}
	if li < 0 {
		return errors.New("ply: face element lacks a vertex index list")
	}

	row := make([]float64, len(el.Properties))
	idx := make([]int, 0, 8)
	for n := 0; n < el.Count; n++ {
		var captured []float64
		err := d.readRow(el, row, func(propIndex int, values []float64) {
			if propIndex == li {
				captured = values
			}
		})
		if err != nil {
			return err
		}
		idx = idx[:0]
		for _, v := range captured {
			idx = append(idx, int(v))
		}
		if err := onFace(idx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) skipElement(el Element) error {
	row := make([]float64, len(el.Properties))
	for n := 0; n < el.Count; n++ {
		if err := d.readRow(el, row, nil); err != nil {
			return err
		}
	}
	return nil
}

// readRow decodes one element row. Scalar property i lands in row[i]; list
// property values are passed to onList when non-nil.
func (d *Decoder) readRow(el Element, row []float64, onList func(propIndex int, values []float64)) error {
	if d.h.Format == FormatASCII {
		return d.readRowASCII(el, row, onList)
	}
	return d.readRowBinary(el, row, onList)
}

func (d *Decoder) readRowASCII(el Element, row []float64, onList func(int, []float64)) error {
	line, err := d.readDataLine()
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	pos := 0
	next := func() (float64, error) {
		if pos >= len(fields) {
			return 0, errors.Errorf("ply: short row in element %q", el.Name)
		}
		v, err := strconv.ParseFloat(fields[pos], 64)
		if err != nil {
			return 0, errors.Wrapf(err, "ply: bad value in element %q", el.Name)
		}
		pos++
		return v, nil
	}
	for i, p := range el.Properties {
		if !p.List {
			v, err := next()
			if err != nil {
				return err
			}
			row[i] = v
			continue
		}
		cnt, err := next()
		if err != nil {
			return err
		}
		if cnt < 0 || cnt > 1e7 {
			return errors.Errorf("ply: implausible list count %g", cnt)
		}
		values := make([]float64, int(cnt))
		for j := range values {
			if values[j], err = next(); err != nil {
				return err
			}
		}
		if onList != nil {
			onList(i, values)
		}
	}
	return nil
}

// readDataLine returns the next non-blank body line.
func (d *Decoder) readDataLine() (string, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil // final line without newline
		}
		if err != nil {
			return "", errors.Wrap(err, "ply: truncated body")
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
}

func (d *Decoder) readRowBinary(el Element, row []float64, onList func(int, []float64)) error {
	for i, p := range el.Properties {
		if !p.List {
			v, err := d.readBinaryScalar(p.Type)
			if err != nil {
				return err
			}
			row[i] = v
			continue
		}
		cnt, err := d.readBinaryScalar(p.CountType)
		if err != nil {
			return err
		}
		if cnt < 0 || cnt > 1e7 {
			return errors.Errorf("ply: implausible list count %g", cnt)
		}
		values := make([]float64, int(cnt))
		for j := range values {
			if values[j], err = d.readBinaryScalar(p.Type); err != nil {
				return err
			}
		}
		if onList != nil {
			onList(i, values)
		}
	}
	return nil
}

func (d *Decoder) readBinaryScalar(typ string) (float64, error) {
	size := typeSizes[typ]
	buf := d.bf[:size]
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return 0, errors.Wrap(err, "ply: truncated body")
	}
	switch typ {
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(buf))), nil
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(buf)), nil
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(buf))), nil
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(buf)), nil
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	case "double", "float64":
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	}
	return 0, errors.Errorf("ply: unknown type %q", typ)
}
