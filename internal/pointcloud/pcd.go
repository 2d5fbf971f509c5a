// Package pointcloud reads and writes LiDAR point clouds (PCD and raw BIN)
// and merges clouds from several sensors into one frame.
package pointcloud

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Point is an XYZ point in metres.
type Point struct {
	X, Y, Z float64
}

// Cloud is an unordered set of points.
type Cloud []Point

// Data encodings of the PCD body.
const (
	DataASCII            = "ascii"
	DataBinary           = "binary"
	DataBinaryCompressed = "binary_compressed"
)

const (
	maxHeaderLines = 64
	maxRecordSize  = 1 << 16

	// Header counts are untrusted, so slices start no larger than this and
	// grow with the data actually read.
	maxPrealloc = 1 << 16

	// An LZF back reference of three bytes expands to at most 264 bytes.
	maxLZFRatio = 88
)

func preallocPoints(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

// Header is a parsed PCD header.
type Header struct {
	Version   string
	Fields    []string
	Size      []int
	Type      []byte // 'F', 'I' or 'U'
	Count     []int
	Width     int
	Height    int
	Viewpoint []float64
	Points    int
	Data      string
}

// RecordSize is the byte size of one point in binary encodings.
func (h *Header) RecordSize() int {
	n := 0
	for i := range h.Fields {
		n += h.Size[i] * h.Count[i]
	}
	return n
}

// fieldIndex returns the index of name in Fields or -1.
func (h *Header) fieldIndex(name string) int {
	for i, f := range h.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

func (h *Header) validate() error {
	n := len(h.Fields)
	if n == 0 {
		return errors.New("pcd header has no FIELDS")
	}
	if h.Count == nil {
		h.Count = make([]int, n)
		for i := range h.Count {
			h.Count[i] = 1
		}
	}
	if len(h.Size) != n || len(h.Type) != n || len(h.Count) != n {
		return fmt.Errorf("pcd header field/size/type/count mismatch: %d/%d/%d/%d", n, len(h.Size), len(h.Type), len(h.Count))
	}
	for i := range h.Fields {
		if !validType(h.Type[i], h.Size[i]) {
			return fmt.Errorf("pcd field %s: unsupported TYPE %c SIZE %d", h.Fields[i], h.Type[i], h.Size[i])
		}
		if h.Count[i] < 1 || h.Count[i] > maxRecordSize {
			return fmt.Errorf("pcd field %s: COUNT %d out of range", h.Fields[i], h.Count[i])
		}
	}
	if rec := h.RecordSize(); rec > maxRecordSize {
		return fmt.Errorf("pcd record size %d exceeds %d bytes", rec, maxRecordSize)
	}
	if h.Height == 0 {
		h.Height = 1
	}
	if h.Points == 0 {
		h.Points = h.Width * h.Height
	}
	if h.Points < 0 {
		return fmt.Errorf("pcd header has negative POINTS %d", h.Points)
	}
	for _, axis := range []string{"x", "y", "z"} {
		if h.fieldIndex(axis) < 0 {
			return fmt.Errorf("pcd has no %s field", axis)
		}
	}
	switch h.Data {
	case DataASCII, DataBinary, DataBinaryCompressed:
	default:
		return fmt.Errorf("unsupported pcd DATA %q", h.Data)
	}
	return nil
}

func validType(t byte, size int) bool {
	switch t {
	case 'F':
		return size == 4 || size == 8
	case 'I', 'U':
		return size == 1 || size == 2 || size == 4 || size == 8
	}
	return false
}

func atoiList(tokens []string) ([]int, error) {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadHeader parses the header from r, leaving r positioned at the first
// byte of the body.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{}
	for i := 0; i < maxHeaderLines; i++ {
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("failed to read pcd header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		key, vals := strings.ToUpper(parts[0]), parts[1:]

		var perr error
		switch key {
		case "VERSION":
			if len(vals) > 0 {
				h.Version = vals[0]
			}
		case "FIELDS", "COLUMNS":
			h.Fields = vals
		case "SIZE":
			h.Size, perr = atoiList(vals)
		case "TYPE":
			h.Type = make([]byte, len(vals))
			for j, v := range vals {
				if len(v) != 1 {
					return nil, fmt.Errorf("invalid pcd TYPE %q", v)
				}
				h.Type[j] = strings.ToUpper(v)[0]
			}
		case "COUNT":
			h.Count, perr = atoiList(vals)
		case "WIDTH", "HEIGHT", "POINTS":
			if len(vals) != 1 {
				return nil, fmt.Errorf("pcd %s expects one value", key)
			}
			var v int
			if v, perr = strconv.Atoi(vals[0]); perr == nil {
				switch key {
				case "WIDTH":
					h.Width = v
				case "HEIGHT":
					h.Height = v
				default:
					h.Points = v
				}
			}
		case "VIEWPOINT":
			h.Viewpoint = make([]float64, len(vals))
			for j, v := range vals {
				if h.Viewpoint[j], perr = strconv.ParseFloat(v, 64); perr != nil {
					break
				}
			}
		case "DATA":
			if len(vals) != 1 {
				return nil, errors.New("pcd DATA expects one value")
			}
			h.Data = strings.ToLower(vals[0])
			if err := h.validate(); err != nil {
				return nil, err
			}
			return h, nil
		default:
			return nil, fmt.Errorf("unknown pcd header key %q", parts[0])
		}
		if perr != nil {
			return nil, fmt.Errorf("invalid pcd %s: %w", key, perr)
		}
	}
	return nil, errors.New("pcd header has no DATA line")
}

// ReadPCD decodes the x, y and z fields of a PCD stream. Points with a NaN
// coordinate are dropped.
func ReadPCD(r io.Reader) (Cloud, *Header, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, nil, err
	}

	var cloud Cloud
	switch h.Data {
	case DataASCII:
		cloud, err = readASCII(br, h)
	case DataBinary:
		cloud, err = readBinary(br, h)
	case DataBinaryCompressed:
		cloud, err = readCompressed(br, h)
	}
	if err != nil {
		return nil, nil, err
	}
	return dropNaN(cloud), h, nil
}

func dropNaN(c Cloud) Cloud {
	out := c[:0]
	for _, p := range c {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// xyzColumns returns, for each axis, the token index in an ASCII row and
// the byte offset in a binary record.
func xyzColumns(h *Header) (tokens, offsets, fields [3]int) {
	tok, off := 0, 0
	for i, f := range h.Fields {
		for a, axis := range []string{"x", "y", "z"} {
			if f == axis {
				tokens[a], offsets[a], fields[a] = tok, off, i
			}
		}
		tok += h.Count[i]
		off += h.Size[i] * h.Count[i]
	}
	return
}

func readASCII(r *bufio.Reader, h *Header) (Cloud, error) {
	tokens, _, _ := xyzColumns(h)
	width := 0
	for _, c := range h.Count {
		width += c
	}

	cloud := make(Cloud, 0, preallocPoints(h.Points))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	row := 0
	for len(cloud) < h.Points && sc.Scan() {
		row++
		parts := strings.Fields(sc.Text())
		if len(parts) == 0 {
			continue
		}
		if len(parts) < width {
			return nil, fmt.Errorf("pcd ascii row %d: expected %d values, got %d", row, width, len(parts))
		}
		var xyz [3]float64
		for a := range xyz {
			v, err := strconv.ParseFloat(parts[tokens[a]], 64)
			if err != nil {
				return nil, fmt.Errorf("pcd ascii row %d: %w", row, err)
			}
			xyz[a] = v
		}
		cloud = append(cloud, Point{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pcd ascii body: %w", err)
	}
	if len(cloud) != h.Points {
		return nil, fmt.Errorf("pcd ascii body has %d points, header says %d", len(cloud), h.Points)
	}
	return cloud, nil
}

func readBinary(r io.Reader, h *Header) (Cloud, error) {
	_, offsets, fields := xyzColumns(h)
	buf := make([]byte, h.RecordSize())

	cloud := make(Cloud, 0, preallocPoints(h.Points))
	for i := 0; i < h.Points; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read pcd binary point %d of %d: %w", i, h.Points, err)
		}
		cloud = append(cloud, Point{
			X: decodeValue(buf[offsets[0]:], h.Type[fields[0]], h.Size[fields[0]]),
			Y: decodeValue(buf[offsets[1]:], h.Type[fields[1]], h.Size[fields[1]]),
			Z: decodeValue(buf[offsets[2]:], h.Type[fields[2]], h.Size[fields[2]]),
		})
	}
	return cloud, nil
}

// readCompressed decodes a binary_compressed body: two little-endian uint32
// sizes followed by an LZF block whose content is laid out field by field
// rather than point by point.
func readCompressed(r io.Reader, h *Header) (Cloud, error) {
	var sizes [8]byte
	if _, err := io.ReadFull(r, sizes[:]); err != nil {
		return nil, fmt.Errorf("failed to read pcd compressed sizes: %w", err)
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:4])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:8])
	if want := uint64(h.RecordSize()) * uint64(h.Points); uint64(uncompressedSize) != want {
		return nil, fmt.Errorf("pcd compressed body is %d bytes, expected %d", uncompressedSize, want)
	}

	if uint64(uncompressedSize) > uint64(compressedSize)*maxLZFRatio {
		return nil, fmt.Errorf("pcd compressed body of %d bytes cannot expand to %d", compressedSize, uncompressedSize)
	}

	compressed, err := io.ReadAll(io.LimitReader(r, int64(compressedSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read pcd compressed body: %w", err)
	}
	if len(compressed) != int(compressedSize) {
		return nil, fmt.Errorf("pcd compressed body truncated: %d of %d bytes", len(compressed), compressedSize)
	}
	body, err := lzfDecompress(compressed, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress pcd body: %w", err)
	}

	// Start of each field's column.
	starts := make([]int, len(h.Fields))
	off := 0
	for i := range h.Fields {
		starts[i] = off
		off += h.Size[i] * h.Count[i] * h.Points
	}
	_, _, fields := xyzColumns(h)
	column := func(axis, i int) float64 {
		f := fields[axis]
		stride := h.Size[f] * h.Count[f]
		return decodeValue(body[starts[f]+i*stride:], h.Type[f], h.Size[f])
	}

	cloud := make(Cloud, h.Points)
	for i := range cloud {
		cloud[i] = Point{X: column(0, i), Y: column(1, i), Z: column(2, i)}
	}
	return cloud, nil
}

func decodeValue(b []byte, typ byte, size int) float64 {
	le := binary.LittleEndian
	switch typ {
	case 'F':
		if size == 8 {
			return math.Float64frombits(le.Uint64(b))
		}
		return float64(math.Float32frombits(le.Uint32(b)))
	case 'I':
		switch size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(le.Uint16(b)))
		case 4:
			return float64(int32(le.Uint32(b)))
		default:
			return float64(int64(le.Uint64(b)))
		}
	default:
		switch size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(le.Uint16(b))
		case 4:
			return float64(le.Uint32(b))
		default:
			return float64(le.Uint64(b))
		}
	}
}

// WritePCD writes c as a binary PCD with float32 x, y and z fields.
func WritePCD(w io.Writer, c Cloud) error {
	bw := bufio.NewWriter(w)
	_, err := fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n"+
		"VERSION 0.7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA binary\n",
		len(c), len(c))
	if err != nil {
		return err
	}
	if err := writeFloat32XYZ(bw, c); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteBIN writes c as consecutive little-endian float32 x, y, z triples.
func WriteBIN(w io.Writer, c Cloud) error {
	bw := bufio.NewWriter(w)
	if err := writeFloat32XYZ(bw, c); err != nil {
		return err
	}
	return bw.Flush()
}

func writeFloat32XYZ(w io.Writer, c Cloud) error {
	var buf [12]byte
	le := binary.LittleEndian
	for _, p := range c {
		le.PutUint32(buf[0:], math.Float32bits(float32(p.X)))
		le.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
		le.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}
