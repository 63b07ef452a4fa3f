package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errorStrings[E error](errs []E) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

type rangeFlags struct {
	start string
	end   string
}

func (f *rangeFlags) register(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVar(&f.start, "start", "", "first day "+usage+" (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day "+usage+" (YYYY-MM-DD)")
}

func (f *rangeFlags) set() bool {
	return f.start != "" || f.end != ""
}

// dateRange parses the flags. A missing end is today and a missing start is days before end.
func (f *rangeFlags) dateRange(today civil.Date, days int) (finance.DateRange, error) {
	r := finance.TrailingWindow(today, days)

	if f.end != "" {
		end, err := civil.ParseDate(f.end)
		if err != nil {
			return r, &finance.ValidationError{Field: "end", Reason: fmt.Sprintf("invalid date %q", f.end)}
		}
		r = finance.TrailingWindow(end, days)
	}

	if f.start != "" {
		start, err := civil.ParseDate(f.start)
		if err != nil {
			return r, &finance.ValidationError{Field: "start", Reason: fmt.Sprintf("invalid date %q", f.start)}
		}
		r.Start = start
	}

	return r, r.Validate()
}
