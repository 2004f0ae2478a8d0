// Package ply reads the subset of the PLY polygon format the geometry
// loaders need: ascii and binary_little_endian files carrying float x,y,z
// vertex properties and, optionally, face index lists. Unknown elements and
// properties are skipped, not rejected.
package ply

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Format is the PLY body encoding.
type Format int

const (
	FormatASCII Format = iota
	FormatBinaryLE
)

// Property describes one per-row property of an element.
type Property struct {
	Name string
	Type string // scalar type, or the list element type for lists
	// List marks a variable-length property; CountType is the type of the
	// leading count value.
	List      bool
	CountType string
}

// Element describes one element block (vertex, face, ...) in file order.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// Header is the parsed PLY header.
type Header struct {
	Format   Format
	Elements []Element
}

// Element returns the named element, or nil.
func (h *Header) Element(name string) *Element {
	for i := range h.Elements {
		if h.Elements[i].Name == name {
			return &h.Elements[i]
		}
	}
	return nil
}

// VertexCount returns the row count of the vertex element.
func (h *Header) VertexCount() int {
	if el := h.Element("vertex"); el != nil {
		return el.Count
	}
	return 0
}

// HasFaces reports whether the file carries face topology.
func (h *Header) HasFaces() bool {
	el := h.Element("face")
	return el != nil && el.Count > 0
}

var typeSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// ReadHeader parses a PLY header from r, leaving r positioned at the start
// of the body.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	magic, err := readHeaderLine(r)
	if err != nil {
		return nil, err
	}
	if magic != "ply" {
		return nil, errors.New("ply: missing magic")
	}

	h := &Header{}
	sawFormat := false
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
			// ignored
		case "format":
			if len(fields) < 2 {
				return nil, errors.New("ply: malformed format line")
			}
			switch fields[1] {
			case "ascii":
				h.Format = FormatASCII
			case "binary_little_endian":
				h.Format = FormatBinaryLE
			default:
				return nil, errors.Errorf("ply: unsupported format %q", fields[1])
			}
			sawFormat = true
		case "element":
			if len(fields) != 3 {
				return nil, errors.New("ply: malformed element line")
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, errors.Errorf("ply: bad element count %q", fields[2])
			}
			h.Elements = append(h.Elements, Element{Name: fields[1], Count: count})
		case "property":
			if len(h.Elements) == 0 {
				return nil, errors.New("ply: property before element")
			}
			el := &h.Elements[len(h.Elements)-1]
			p, err := parseProperty(fields)
			if err != nil {
				return nil, err
			}
			el.Properties = append(el.Properties, p)
		case "end_header":
			if !sawFormat {
				return nil, errors.New("ply: missing format line")
			}
			return h, nil
		default:
			return nil, errors.Errorf("ply: unknown header keyword %q", fields[0])
		}
	}
}

func parseProperty(fields []string) (Property, error) {
	if len(fields) >= 5 && fields[1] == "list" {
		if _, ok := typeSizes[fields[2]]; !ok {
			return Property{}, errors.Errorf("ply: unknown type %q", fields[2])
		}
		if _, ok := typeSizes[fields[3]]; !ok {
			return Property{}, errors.Errorf("ply: unknown type %q", fields[3])
		}
		return Property{Name: fields[4], Type: fields[3], List: true, CountType: fields[2]}, nil
	}
	if len(fields) == 3 {
		if _, ok := typeSizes[fields[1]]; !ok {
			return Property{}, errors.Errorf("ply: unknown type %q", fields[1])
		}
		return Property{Name: fields[2], Type: fields[1]}, nil
	}
	return Property{}, errors.Errorf("ply: malformed property line %q", strings.Join(fields, " "))
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "ply: truncated header")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Sniff opens fileName and parses only the header. Used by the geometry
// factory to tell point-only PLY files from mesh PLY files.
func Sniff(fileName string) (*Header, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHeader(bufio.NewReader(f))
}
