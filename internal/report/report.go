package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/pricing"
	"github.com/signalnine/toolsgen/internal/result"
)

type FailureCount struct {
	Stage  result.Stage  `json:"stage"`
	Reason result.Reason `json:"reason"`
	Count  int           `json:"count"`
}

type Summary struct {
	Dir            string                 `json:"dir"`
	Requested      int                    `json:"requested"`
	Generated      int                    `json:"generated"`
	Failed         int                    `json:"failed"`
	AcceptanceRate float64                `json:"acceptance_rate"`
	Train          int                    `json:"train"`
	Val            int                    `json:"val"`
	Strategy       string                 `json:"strategy"`
	Seed           int64                  `json:"seed"`
	Aborted        bool                   `json:"aborted,omitempty"`
	MeanScore      float64                `json:"mean_score"`
	Quality        map[string]int         `json:"quality"`
	Failures       []FailureCount         `json:"failures"`
	Usage          map[llm.Role]llm.Usage `json:"usage,omitempty"`
	Cost           *pricing.Estimate      `json:"cost,omitempty"`
}

// Generate reads an output directory and writes a summary report.
func Generate(dir, format string, w io.Writer, pricingPath ...string) error {
	var table *pricing.Table
	if len(pricingPath) > 0 && pricingPath[0] != "" {
		t, err := pricing.Load(pricingPath[0])
		if err != nil {
			return err
		}
		table = t
	}
	s, err := Build(dir, table)
	if err != nil {
		return err
	}
	return Write(s, format, w)
}

// Write renders a summary as table, markdown or json.
func Write(s *Summary, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	default:
		return writeTable(s, w)
	}
}

// Build aggregates manifest.json, failures.jsonl and the record files of dir.
// Cost is estimated only when table is non-nil.
func Build(dir string, table *pricing.Table) (*Summary, error) {
	m, err := result.ReadManifest(filepath.Join(dir, result.ManifestFile))
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Dir:       dir,
		Requested: m.NumRequested,
		Generated: m.NumGenerated,
		Failed:    m.NumFailed,
		Train:     m.Splits.Train,
		Val:       m.Splits.Val,
		Strategy:  m.Strategy,
		Seed:      m.Seed,
		Aborted:   m.Aborted,
		Quality:   map[string]int{},
		Usage:     m.Usage,
	}
	if m.NumRequested > 0 {
		s.AcceptanceRate = float64(m.NumGenerated) / float64(m.NumRequested)
	}

	var total float64
	var n int
	for _, name := range []string{result.TrainFile, result.ValFile} {
		err := result.EachRecord(filepath.Join(dir, name), func(_ int, rec *result.Record) error {
			total += rec.Judge.Score
			n++
			for _, tag := range rec.QualityTags {
				if q, ok := strings.CutPrefix(tag, "quality:"); ok {
					s.Quality[q]++
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if n > 0 {
		s.MeanScore = total / float64(n)
	}

	failures, err := result.ReadFailures(filepath.Join(dir, result.FailuresFile))
	if err != nil {
		return nil, err
	}
	s.Failures = aggregate(failures)

	if table != nil {
		est := table.ManifestCost(m)
		s.Cost = &est
	}
	return s, nil
}

func aggregate(failures []result.Failure) []FailureCount {
	type key struct {
		stage  result.Stage
		reason result.Reason
	}
	counts := map[key]int{}
	for _, f := range failures {
		counts[key{f.Stage, f.Reason}]++
	}
	out := make([]FailureCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, FailureCount{Stage: k.stage, Reason: k.reason, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeTable(s *Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUESTED\tGENERATED\tFAILED\tACCEPT RATE\tTRAIN\tVAL\tMEAN SCORE")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	fmt.Fprintf(tw, "%d\t%d\t%d\t%.0f%%\t%d\t%d\t%.3f\n",
		s.Requested, s.Generated, s.Failed, s.AcceptanceRate*100, s.Train, s.Val, s.MeanScore)
	if len(s.Failures) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "STAGE\tREASON\tCOUNT")
		for _, f := range s.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Stage, f.Reason, f.Count)
		}
	}
	if len(s.Quality) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "QUALITY\tRECORDS")
		for _, q := range sortedKeys(s.Quality) {
			fmt.Fprintf(tw, "%s\t%d\n", q, s.Quality[q])
		}
	}
	if s.Cost != nil {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "ESTIMATED COST\t$%.4f\n", s.Cost.Total)
		if len(s.Cost.Unpriced) > 0 {
			fmt.Fprintf(tw, "UNPRICED\t%s\n", strings.Join(s.Cost.Unpriced, ", "))
		}
	}
	if s.Aborted {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "run was aborted; counts reflect records written before the abort")
	}
	return tw.Flush()
}

func writeMarkdown(s *Summary, w io.Writer) error {
	fmt.Fprintln(w, "| Requested | Generated | Failed | Accept Rate | Train | Val | Mean Score |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	fmt.Fprintf(w, "| %d | %d | %d | %.0f%% | %d | %d | %.3f |\n",
		s.Requested, s.Generated, s.Failed, s.AcceptanceRate*100, s.Train, s.Val, s.MeanScore)
	if len(s.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Stage | Reason | Count |")
		fmt.Fprintln(w, "|---|---|---|")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "| %s | %s | %d |\n", f.Stage, f.Reason, f.Count)
		}
	}
	if s.Cost != nil {
		fmt.Fprintf(w, "\nEstimated cost: $%.4f\n", s.Cost.Total)
	}
	return nil
}

func writeJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
