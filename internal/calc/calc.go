// Package calc is the line-oriented calculator that webcli serves by default.
package calc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrDivisionByZero   = errors.New("Division by zero")
	ErrInvalidNumbers   = errors.New("Invalid numbers in expression")
	ErrInvalidFormat    = errors.New("Invalid expression format")
	quitWords           = map[string]bool{"quit": true, "exit": true, "q": true}
	operatorsInPriority = []byte{'+', '-', '*', '/'}
)

const (
	Banner = "Calculator - Interactive Mode\nEnter expressions like '2 + 3' or 'quit' to exit\n"
	Prompt = "> "
)

// Calculate evaluates a single binary expression such as "2 + 3".
// Operators are tried in the order + - * /, and the first one that splits the
// expression into exactly two operands wins, so "-2+3" is -2 plus 3.
func Calculate(expr string) (float64, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	for _, op := range operatorsInPriority {
		parts := strings.Split(expr, string(op))
		if len(parts) != 2 {
			continue
		}
		a, errA := strconv.ParseFloat(parts[0], 64)
		b, errB := strconv.ParseFloat(parts[1], 64)
		if errA != nil || errB != nil {
			return 0, ErrInvalidNumbers
		}
		switch op {
		case '+':
			return a + b, nil
		case '-':
			return a - b, nil
		case '*':
			return a * b, nil
		case '/':
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			return a / b, nil
		}
	}
	return 0, ErrInvalidFormat
}

// Format renders a result the way the calculator always has: integral values keep a
// trailing ".0", very large or very small magnitudes use exponent notation.
func Format(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs >= 1e16 || (abs != 0 && abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Interactive runs the prompt loop until a quit word or EOF on in.
// Output is flushed before each read so a result and the next prompt reach out in one write.
func Interactive(in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)

	if _, err := w.WriteString(Banner); err != nil {
		return err
	}
	for {
		if _, err := w.WriteString(Prompt); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flushing output: %w", err)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		expr := strings.TrimSpace(scanner.Text())
		if quitWords[strings.ToLower(expr)] {
			return w.Flush()
		}
		if expr == "" {
			continue
		}

		result, err := Calculate(expr)
		if err != nil {
			fmt.Fprintf(w, "Error: %s\n", err)
			continue
		}
		fmt.Fprintf(w, "= %s\n", Format(result))
	}
}
