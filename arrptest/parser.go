// Package arrptest supports the compiler's test suites: it parses
// expected-output files embedded in test programs and evaluates finite
// programs directly from the polyhedral model as a reference.
package arrptest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ElemType is the declared element type of an expectation.
type ElemType int

const (
	BoolElem ElemType = iota
	IntElem
	Float32Elem
	Float64Elem
)

// Expectation is the parsed contents of the "##?" annotations of a
// test file: the declared size (with -1 for an infinite dimension),
// the element type, and the expected values in row-major order.
type Expectation struct {
	Size []int64
	Type ElemType
	Data []float64
}

const marker = "##?"

// Parse reads the expectation annotations from a test source. The
// header line has the form "##? [d1,d2,...] type"; subsequent marker
// lines carry nested parenthesized data matching the declared rank.
func Parse(r io.Reader) (*Expectation, error) {
	scanner := bufio.NewScanner(r)

	var header string
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, marker); i >= 0 {
			header = strings.TrimSpace(line[i+len(marker):])
			break
		}
	}
	if header == "" {
		return nil, fmt.Errorf("no expectation header")
	}

	e := &Expectation{}
	if err := e.parseHeader(header); err != nil {
		return nil, err
	}

	for scanner.Scan() {
		line := scanner.Text()
		i := strings.Index(line, marker)
		if i < 0 {
			continue
		}
		p := &elementParser{src: strings.TrimSpace(line[i+len(marker):]), e: e}
		if err := p.parseElement(0); err != nil {
			return nil, err
		}
	}
	return e, scanner.Err()
}

func (e *Expectation) parseHeader(header string) error {
	rest := header
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return fmt.Errorf("could not parse array size")
		}
		for _, dim := range strings.Split(rest[1:end], ",") {
			dim = strings.TrimSpace(dim)
			if dim == "~" {
				e.Size = append(e.Size, -1)
				continue
			}
			s, err := strconv.ParseInt(dim, 10, 64)
			if err != nil {
				return fmt.Errorf("could not parse array size: %v", err)
			}
			e.Size = append(e.Size, s)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	switch rest {
	case "bool":
		e.Type = BoolElem
	case "int":
		e.Type = IntElem
	case "real32":
		e.Type = Float32Elem
	case "real64":
		e.Type = Float64Elem
	case "":
		return fmt.Errorf("could not parse data type")
	default:
		return fmt.Errorf("invalid type name: %s", rest)
	}
	return nil
}

type elementParser struct {
	src string
	pos int
	e   *Expectation
}

func (p *elementParser) next() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *elementParser) skipSpace() {
	for p.next() == ' ' {
		p.pos++
	}
}

func (p *elementParser) parseElement(depth int) error {
	p.skipSpace()
	var err error
	if p.next() == '(' {
		err = p.parseList(depth)
	} else {
		err = p.parseValue(depth)
	}
	if err != nil {
		return err
	}
	p.skipSpace()
	return nil
}

func (p *elementParser) parseList(depth int) error {
	if c := p.next(); c != '(' {
		return fmt.Errorf("expected '(' but got %q", c)
	}
	p.pos++

	if depth+1 > len(p.e.Size) {
		return fmt.Errorf("too many dimensions")
	}

	count := int64(1)
	for {
		if err := p.parseElement(depth + 1); err != nil {
			return err
		}
		if p.next() != ',' {
			break
		}
		p.pos++
		count++
		if size := p.e.Size[depth]; size >= 0 && count > size {
			return fmt.Errorf("too many elements in dimension %d", depth)
		}
	}

	if c := p.next(); c != ')' {
		return fmt.Errorf("expected ')' but got %q", c)
	}
	p.pos++

	if size := p.e.Size[depth]; size >= 0 && count < size {
		return fmt.Errorf("too few elements in dimension %d", depth)
	}
	return nil
}

func (p *elementParser) parseValue(depth int) error {
	if depth != len(p.e.Size) {
		return fmt.Errorf("value at wrong nesting level")
	}

	start := p.pos
	if c := p.next(); c == '-' || c == '+' {
		p.pos++
	}
	digits := 0
	hasDot := false
	for {
		c := p.next()
		if c >= '0' && c <= '9' {
			digits++
			p.pos++
		} else if c == '.' && !hasDot {
			hasDot = true
			p.pos++
		} else {
			break
		}
	}
	if digits == 0 {
		return fmt.Errorf("could not parse value")
	}

	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return fmt.Errorf("could not parse value: %s", p.src[start:p.pos])
	}
	if p.e.Type == Float32Elem {
		v = float64(float32(v))
	}
	p.e.Data = append(p.e.Data, v)
	return nil
}
