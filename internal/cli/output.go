package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"learnquest_backend/pkg/engine"
	"learnquest_backend/pkg/ledger"
)

// emit json 模式直接编码，text 模式调用 text 回调
func emit(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func progressBar(p ledger.Progress, width int) string {
	filled := int(p.Percent * float64(width) / 100)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderWindow(w io.Writer, win engine.Window) {
	var cells []string
	for _, d := range win.Days {
		mark := "·"
		switch {
		case d.Active:
			mark = "x"
		case d.IsToday:
			mark = "o"
		}
		if d.IsBonus {
			mark += "*"
		}
		cells = append(cells, fmt.Sprintf("%d:%s", d.Slot, mark))
	}
	fmt.Fprintf(w, "Streak:  %d day(s)  %s\n", win.StreakCount, strings.Join(cells, " "))
	if win.BonusClaimable {
		fmt.Fprintln(w, "         weekly bonus ready: progressctl claim weekly")
	}
}
