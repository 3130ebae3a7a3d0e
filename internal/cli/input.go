package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

// LineReader supplies shell input. The default value pre-fills the line.
type LineReader interface {
	ReadLine(label, defaultValue string) (string, error)
	Choose(label string, items []string) (int, error)
}

type promptReader struct{}

func (promptReader) ReadLine(label, defaultValue string) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   defaultValue,
		AllowEdit: true,
	}
	line, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return "", io.EOF
	}
	return line, err
}

func (promptReader) Choose(label string, items []string) (int, error) {
	sel := promptui.Select{
		Label: label,
		Items: items,
		Size:  10,
	}
	index, _, err := sel.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return -1, io.EOF
	}
	return index, err
}

// scriptReader reads one command per line, for piped input.
type scriptReader struct {
	scanner *bufio.Scanner
}

func newScriptReader(r io.Reader) *scriptReader {
	return &scriptReader{scanner: bufio.NewScanner(r)}
}

func (s *scriptReader) ReadLine(_, defaultValue string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := s.scanner.Text()
	if strings.TrimSpace(line) == "" {
		return defaultValue, nil
	}
	return line, nil
}

func (s *scriptReader) Choose(string, []string) (int, error) {
	return -1, errors.New("interactive selection needs a terminal; pass a number")
}
