// Package picker hands ranked candidates to fzf and reads back the choice.
package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"btstrm/internal/domain"
)

const (
	defaultBinary = "fzf"

	detailsPreview = `echo {} | awk -F'\t' '{print "\033[1mName:\033[0m ", $1, "\n\033[1mSeeders:\033[0m ", $2, "\n\033[1mSize:\033[0m ", $3}'`
	posterPreview  = `echo {} | awk -F'\t' '{print $1}' | xargs -I{} sh -c 'chafa -s x20 --format=symbols {}'`
)

// fzf exits 1 when nothing matched and 130 when the user aborted.
var abortStatuses = map[int]bool{1: true, 130: true}

// Title is one row of the title picker: a poster on disk and its display name.
type Title struct {
	PosterPath string
	Name       string
}

type Picker struct {
	Binary string
	// Stderr receives the selector's interface. Defaults to os.Stderr.
	Stderr io.Writer
}

func New(binary string) *Picker {
	if strings.TrimSpace(binary) == "" {
		binary = defaultBinary
	}
	return &Picker{Binary: binary, Stderr: os.Stderr}
}

// Rows serializes the result in ranked order, one tab separated row per candidate.
func Rows(result domain.AggregateResult) []string {
	rows := make([]string, 0, len(result))
	for _, c := range result {
		rows = append(rows, strings.Join([]string{
			c.Title,
			strconv.Itoa(c.Seeders),
			c.SizeDisplay(),
			c.Link,
		}, "\t"))
	}
	return rows
}

// Pick returns the link of the chosen row.
func (p *Picker) Pick(ctx context.Context, rows []string) (string, error) {
	if len(rows) == 0 {
		return "", domain.ErrNoSelection
	}
	line, err := p.run(ctx, rows,
		"--height=20", "--no-sort",
		"--delimiter", "\t",
		"--with-nth", "1,2,3",
		"--preview", detailsPreview,
		"--preview-window", "right:wrap",
		"-q", "",
	)
	if err != nil {
		return "", err
	}
	fields := strings.Split(line, "\t")
	link := strings.TrimSpace(fields[len(fields)-1])
	if link == "" {
		return "", domain.ErrNoSelection
	}
	return link, nil
}

// PickTitle shows titles with a poster preview and returns the chosen name.
func (p *Picker) PickTitle(ctx context.Context, titles []Title) (string, error) {
	if len(titles) == 0 {
		return "", domain.ErrNoSelection
	}
	rows := make([]string, 0, len(titles))
	for _, t := range titles {
		rows = append(rows, t.PosterPath+"\t"+t.Name)
	}
	line, err := p.run(ctx, rows,
		"--height=20", "--no-sort",
		"--delimiter", "\t",
		"--with-nth", "2",
		"--preview", posterPreview,
		"-q", "",
	)
	if err != nil {
		return "", err
	}
	_, name, ok := strings.Cut(line, "\t")
	if !ok {
		name = line
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrNoSelection
	}
	return name, nil
}

func (p *Picker) run(ctx context.Context, rows []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Stdin = strings.NewReader(strings.Join(rows, "\n") + "\n")
	cmd.Stderr = p.Stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && abortStatuses[exitErr.ExitCode()] {
			return "", domain.ErrNoSelection
		}
		return "", fmt.Errorf("run %s: %w", p.Binary, err)
	}

	line := strings.TrimRight(string(out), "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", domain.ErrNoSelection
	}
	return line, nil
}
