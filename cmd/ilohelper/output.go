package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
)

// printResult writes the human readable outcome of a command.
func printResult(w io.Writer, r *models.RunResult) {
	if r.Temperatures != nil {
		printTemperatures(w, r.Temperatures)
	}
	if r.Status != nil {
		printStatus(w, r.Status)
	}
	if r.PowerAction != nil {
		printPowerAction(w, "Power action", r.PowerAction)
	}
	if r.BootWait != nil {
		printBootWait(w, r.BootWait)
	}
	if r.Wake != nil {
		fmt.Fprintf(w, "Magic packet sent: %v\n", r.Wake.PacketSent)
	}
	if r.Poll != nil {
		printPoll(w, r.Poll)
	}
	if r.Shutdown != nil {
		printShutdown(w, r.Shutdown)
	}
}

func printTemperatures(w io.Writer, t *models.TemperatureResult) {
	if !t.Available() {
		fmt.Fprintln(w, "Temperatures: unavailable")
		return
	}

	fmt.Fprintln(w, "Temperatures:")
	for _, reading := range t.Readings {
		if reading.Present {
			fmt.Fprintf(w, "  %-24s %6.1f °C\n", reading.Name, reading.Celsius)
		} else {
			fmt.Fprintf(w, "  %-24s %8s\n", reading.Name, "absent")
		}
	}

	if t.Stats != nil {
		fmt.Fprintf(w, "  min %.1f °C, max %.1f °C, mean %.1f °C over %d sensors\n",
			t.Stats.Min, t.Stats.Max, t.Stats.Mean, t.Stats.Count)
	}
}

func printStatus(w io.Writer, s *models.StatusResult) {
	if s.Status == nil {
		fmt.Fprintln(w, "Status: unavailable")
		return
	}

	fmt.Fprintln(w, "Status:")
	fmt.Fprintf(w, "  Power: %s\n", s.Status.PowerState)
	if s.Status.Health != "" {
		fmt.Fprintf(w, "  Health: %s\n", s.Status.Health)
	}
	if s.Status.Model != "" {
		fmt.Fprintf(w, "  Model: %s\n", s.Status.Model)
	}
	if s.Status.HostName != "" {
		fmt.Fprintf(w, "  Host name: %s\n", s.Status.HostName)
	}
	fmt.Fprintf(w, "  Memory: %g GiB\n", s.Status.MemoryGiB)
	if len(s.Status.Processor) > 0 {
		fmt.Fprintf(w, "  CPU: %s\n", strings.TrimSpace(string(s.Status.Processor)))
	}
}

func printPowerAction(w io.Writer, label string, a *models.PowerActionResult) {
	state := "accepted"
	if a.Error != nil {
		state = "failed"
	}
	fmt.Fprintf(w, "%s %s: %s (HTTP %d)\n", label, a.ResetType, state, a.StatusCode)
}

func printBootWait(w io.Writer, b *models.BootWaitResult) {
	fmt.Fprintf(w, "Boot wait: %s after %d probe(s) in %s\n", b.Outcome, b.Attempts, b.Duration.Round(time.Millisecond))
	if b.PowerOn != nil {
		printPowerAction(w, "  Power-on", b.PowerOn)
	}
}

func printPoll(w io.Writer, p *models.PollResult) {
	fmt.Fprintf(w, "Target answering: %v after %d probe(s)\n", p.Reached, p.Attempts)
}

func printShutdown(w io.Writer, s *models.ShutdownResult) {
	if s.SSH != nil {
		fmt.Fprintf(w, "SSH shutdown command run: %v\n", s.SSH.CommandRun)
	}
	fmt.Fprintf(w, "Went down gracefully: %v\n", s.WentDown)
	if s.PowerOff != nil {
		printPowerAction(w, "Forced", s.PowerOff)
	}
}
