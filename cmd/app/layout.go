package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/starford/tessera/internal/layout"
)

func renderLayout(w io.Writer, n int, width, height, gap float64) error {
	if n < 0 {
		return fmt.Errorf("tiles must not be negative, got %d", n)
	}
	if err := layout.Check(n, width, height, gap); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	rects := layout.Compute(n, width, height, gap)

	_, _ = fmt.Fprintf(w, "%s %s (%d tiles, %gx%g, gap %g)\n",
		bold.Sprint("Scheme:"), layout.SchemeFor(n), n, width, height, gap)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("#"), bold.Sprint("X"), bold.Sprint("Y"), bold.Sprint("Width"), bold.Sprint("Height"))
	for i, r := range rects {
		tbl.AddRow(i+1, fmt.Sprintf("%.1f", r.X), fmt.Sprintf("%.1f", r.Y),
			fmt.Sprintf("%.1f", r.Width), fmt.Sprintf("%.1f", r.Height))
	}
	_, _ = fmt.Fprintln(w, tbl)
	return nil
}
