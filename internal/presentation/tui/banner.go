package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`  _           _`,
	` | |__   ___ | |_ _____      ____ _ _ __`,
	` | '_ \ / _ \| __/ __\ \ /\ / / _`+"`"+` | '_ \`,
	` | | | | (_) | |_\__ \\ V  V / (_| | |_) |`,
	` |_| |_|\___/ \__|___/ \_/\_/ \__,_| .__/`,
	`                                   |_|`,
}

// Orange to pink, one stop per banner line.
var bannerColors = []string{"#fb923c", "#f97316", "#f43f5e", "#ec4899", "#d946ef", "#a855f7"}

// PrintBanner writes the hotswap banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, p.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, p.String(fmt.Sprintf("  v%s", version)).Faint())
	fmt.Fprintln(w)
}
