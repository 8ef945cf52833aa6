// fit-inspect decodes a FIT file and prints its sessions, laps, and the
// coverage of the record streams the enrichers contribute (heart rate, power,
// position). Useful for eyeballing what fit-gen or the engine produced.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

type fieldStats struct {
	count int
	min   float64
	max   float64
	sum   float64
}

func (s *fieldStats) update(v float64) {
	if s.count == 0 {
		s.min, s.max = v, v
	} else {
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	}
	s.count++
	s.sum += v
}

func (s *fieldStats) avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

func main() {
	inputPath := flag.String("input", "", "path to a FIT file")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read file: %v\n", err)
		os.Exit(1)
	}

	fitData, err := decoder.New(bytes.NewReader(data)).Decode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode FIT file: %v\n", err)
		os.Exit(1)
	}

	stats := map[string]*fieldStats{
		"heart_rate":    {},
		"power":         {},
		"position_lat":  {},
		"position_long": {},
		"distance":      {},
	}
	records := 0

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for _, msg := range fitData.Messages {
		switch msg.Num {
		case typedef.MesgNumSession:
			s := mesgdef.NewSession(&msg)
			fmt.Fprintf(w, "session\t%s\t%.0fs\t%.2fkm\t%s\n",
				s.StartTime.UTC().Format("2006-01-02 15:04:05"),
				float64(s.TotalElapsedTime)/1000,
				float64(s.TotalDistance)/100/1000,
				s.Sport.String())
		case typedef.MesgNumLap:
			l := mesgdef.NewLap(&msg)
			fmt.Fprintf(w, "lap\t%s\t%.0fs\t%.2fkm\n",
				l.StartTime.UTC().Format("15:04:05"),
				float64(l.TotalElapsedTime)/1000,
				float64(l.TotalDistance)/100/1000)
		case typedef.MesgNumRecord:
			records++
			for _, field := range msg.Fields {
				s, ok := stats[field.Name]
				if !ok {
					continue
				}
				if v, numeric := asFloat(field.Value.Any()); numeric {
					s.update(v)
				}
			}
		}
	}
	w.Flush()

	fmt.Printf("\nrecords: %d\n", records)
	sw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(sw, "field\tcount\tcoverage\tmin\tmax\tavg")
	for name, s := range stats {
		if s.count == 0 {
			continue
		}
		coverage := float64(s.count) / float64(records) * 100
		fmt.Fprintf(sw, "%s\t%d\t%.1f%%\t%.2f\t%.2f\t%.2f\n", name, s.count, coverage, s.min, s.max, s.avg())
	}
	sw.Flush()
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
