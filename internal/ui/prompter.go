package ui

import (
	stderrors "errors"
	"io"

	"github.com/manifoldco/promptui"
)

// Prompter is the interactive input the checkout commands need.
type Prompter interface {
	Select(label string, items []string) (int, error)
	Input(label, defaultValue string, validate func(string) error, mask rune) (string, error)
}

var selectTemplates = &promptui.SelectTemplates{
	Label:    "{{ . }}?",
	Active:   `{{ "✔" | cyan }} {{ . | cyan }}`,
	Inactive: `  {{ . }}`,
	Selected: `{{ "✔" | green }} {{ . | green }}`,
}

// TerminalPrompter runs promptui against the given streams; nil means the process terminal.
type TerminalPrompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (t TerminalPrompter) Select(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label:     label,
		Items:     items,
		Size:      min(10, len(items)),
		Templates: selectTemplates,
		Stdin:     t.Stdin,
		Stdout:    t.Stdout,
	}
	index, _, err := prompt.Run()
	return index, err
}

func (t TerminalPrompter) Input(label, defaultValue string, validate func(string) error, mask rune) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
		Mask:     mask,
		Stdin:    t.Stdin,
		Stdout:   t.Stdout,
	}
	return prompt.Run()
}

// IsAbort reports whether the user left the prompt with Ctrl-C or Ctrl-D.
func IsAbort(err error) bool {
	return stderrors.Is(err, promptui.ErrInterrupt) || stderrors.Is(err, promptui.ErrEOF) || stderrors.Is(err, promptui.ErrAbort)
}
