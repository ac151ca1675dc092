package logging

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

type colorPair struct{ fg, bg pterm.Color }

var palette = []colorPair{
	{pterm.FgGreen, pterm.BgGreen},
	{pterm.FgYellow, pterm.BgYellow},
	{pterm.FgBlue, pterm.BgBlue},
	{pterm.FgMagenta, pterm.BgMagenta},
	{pterm.FgCyan, pterm.BgCyan},
}

var (
	paletteMu   sync.Mutex
	paletteNext int
)

func nextColor() colorPair {
	paletteMu.Lock()
	defer paletteMu.Unlock()
	c := palette[paletteNext%len(palette)]
	paletteNext++
	return c
}

// ProcessPrinter prints lines from a child process under its name, each
// process in its own colour.
type ProcessPrinter struct {
	printer *pterm.PrefixPrinter
}

func NewProcessPrinter(name string) *ProcessPrinter {
	color := nextColor()
	p := pterm.PrefixPrinter{
		Prefix: pterm.Prefix{
			Text:  name,
			Style: pterm.NewStyle(pterm.FgBlack, color.bg),
		},
		MessageStyle: pterm.NewStyle(color.fg),
	}
	return &ProcessPrinter{printer: &p}
}

// WithWriter redirects the output, stdout by default.
func (p *ProcessPrinter) WithWriter(w io.Writer) *ProcessPrinter {
	return &ProcessPrinter{printer: p.printer.WithWriter(w)}
}

func (p *ProcessPrinter) Println(line string) {
	p.printer.Println(line)
}

// Restream prints r line by line until it is drained.
func (p *ProcessPrinter) Restream(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.Println(line)
	}
	return scanner.Err()
}
