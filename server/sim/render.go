package sim

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

// Render prints a summary as a boxed table.
func Render(w io.Writer, s Summary) error {
	data := pterm.TableData{{"Player", "Hands", "Win%", "95% CI", "AF", "Net", "Per 100"}}
	for _, l := range s.Lines {
		st := l.Stats
		net := l.End - l.Start
		netStr := pterm.LightGreen(fmt.Sprintf("%+d", net))
		if net < 0 {
			netStr = pterm.LightRed(fmt.Sprintf("%+d", net))
		}
		lo, hi := WilsonCI95(st.Wins, st.Ties, st.Hands)
		rate := 0.0
		if st.Hands > 0 {
			rate = 100 * (float64(st.Wins) + 0.5*float64(st.Ties)) / float64(st.Hands)
		}
		data = append(data, []string{
			l.Player,
			fmt.Sprint(st.Hands),
			fmt.Sprintf("%.1f", rate),
			fmt.Sprintf("%.2f-%.2f", lo, hi),
			fmt.Sprintf("%.2f", st.AF()),
			netStr,
			fmt.Sprintf("%.1f", st.PerHundred(s.Unit)),
		})
	}
	tbl, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	title := pterm.LightYellow(fmt.Sprintf("|%s %s|", s.Kind, s.Table))
	box := pterm.DefaultBox.WithTitle(title).WithTitleTopCenter().Sprint(tbl)
	_, err = fmt.Fprintf(w, "%s\n%s\n", box, pterm.LightCyan(fmt.Sprintf("%d hands, %d events delivered", s.Hands, s.Events)))
	return err
}
