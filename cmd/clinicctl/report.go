package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

// onDay keeps the entries whose requested time falls on day in loc. A nil
// day keeps everything.
func onDay(entries []appointment.BoardEntry, day *time.Time, loc *time.Location) []appointment.BoardEntry {
	if day == nil {
		return entries
	}
	want := day.In(loc).Format(time.DateOnly)

	out := make([]appointment.BoardEntry, 0, len(entries))
	for _, e := range entries {
		if e.RequestedAt.In(loc).Format(time.DateOnly) == want {
			out = append(out, e)
		}
	}
	return out
}

func renderReport(w io.Writer, entries []appointment.BoardEntry, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tREQUESTED\tSTATUS\tCONFLICT\tAPPOINTMENT")

	conflicts := 0
	for _, e := range entries {
		conflict := ""
		if e.HasConflict {
			conflict = "yes"
			conflicts++
		}
		appt := "-"
		if e.AppointmentID != nil {
			appt = fmt.Sprint(*e.AppointmentID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.PatientName, e.RequestedAt.In(loc).Format("2006-01-02 15:04"), e.Status, conflict, appt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d request(s), %d in conflict\n", len(entries), conflicts)
	return err
}
