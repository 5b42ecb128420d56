// Package banner prints the revup startup header.
package banner

import (
	"fmt"
	"io"

	"github.com/Devdesai111/RevUp-sub000/internal/config"
	"github.com/Devdesai111/RevUp-sub000/internal/health"
)

// Logo is the ASCII art logo for revup
const Logo = `
   ██████╗ ███████╗██╗   ██╗██╗   ██╗██████╗
   ██╔══██╗██╔════╝██║   ██║██║   ██║██╔══██╗
   ██████╔╝█████╗  ██║   ██║██║   ██║██████╔╝
   ██╔══██╗██╔══╝  ╚██╗ ██╔╝██║   ██║██╔═══╝
   ██║  ██║███████╗ ╚████╔╝ ╚██████╔╝██║
   ╚═╝  ╚═╝╚══════╝  ╚═══╝   ╚═════╝ ╚═╝
`

// Tagline is the project tagline
const Tagline = "Daily alignment, recalculated"

// PrintWithVersion prints the banner with version info
func PrintWithVersion(w io.Writer, version string) {
	fmt.Fprint(w, Logo)
	fmt.Fprintf(w, "   %s\n", Tagline)
	fmt.Fprintf(w, "   v%s\n\n", version)
}

// StartupWithHealth prints the server header with the feature grid for cfg.
func StartupWithHealth(w io.Writer, version, addr string, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "REVUP v%s │ %s\n", version, addr)
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w)

	features := health.CheckFeatures(cfg)
	cols := 2
	colWidth := 22

	for i, f := range features {
		name := f.Name
		if f.Note != "" {
			name = f.Name + "*"
		}
		fmt.Fprintf(w, "%s %-*s", f.Status.Symbol(), colWidth-2, name)
		if (i+1)%cols == 0 || i == len(features)-1 {
			fmt.Fprintln(w)
		}
	}

	hasNotes := false
	for _, f := range features {
		if f.Note != "" {
			if !hasNotes {
				fmt.Fprintln(w)
				hasNotes = true
			}
			fmt.Fprintf(w, "  * %s: %s\n", f.Name, f.Note)
		}
	}

	if cfg.Workers != nil && cfg.Store != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Workers: %d │ Store: %s\n", cfg.Workers.Count, cfg.Store.Driver)
	}
	fmt.Fprintln(w)
}
