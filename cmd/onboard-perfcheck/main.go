// Command onboard-perfcheck compares two `go test -bench` outputs and fails
// when a tracked benchmark got slower than the allowed ratio.
//
//	go test -run '^$' -bench . -count 5 ./... > new.txt
//	onboard-perfcheck -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultThreshold = 0.30

// tracked lists the hot paths of the onboarding service and the units
// checked for each.
var tracked = map[string][]string{
	"BenchmarkSession":      {"ns/op", "allocs/op"},
	"BenchmarkValidateCode": {"ns/op", "allocs/op"},
	"BenchmarkRecordEncode": {"ns/op", "allocs/op"},
	"BenchmarkRecordDecode": {"ns/op", "allocs/op"},
	"BenchmarkRender":       {"ns/op"},
}

// samples maps benchmark name to unit to every observed value.
type samples map[string]map[string][]float64

type comparison struct {
	benchmark string
	unit      string
	base      float64
	candidate float64
}

func (c comparison) delta() float64 {
	return (c.candidate - c.base) / c.base
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)
	flag.StringVar(&baselinePath, "baseline", "", "benchmark output of the reference build")
	flag.StringVar(&candidatePath, "candidate", "", "benchmark output of the build under test")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "largest allowed slowdown ratio (0.30 = +30%)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if baselinePath == "" || candidatePath == "" || threshold < 0 {
		log.Error("-baseline and -candidate are required and -threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseFile(baselinePath)
	if err != nil {
		log.WithError(err).Fatal("parse baseline")
	}
	candidate, err := parseFile(candidatePath)
	if err != nil {
		log.WithError(err).Fatal("parse candidate")
	}

	results, problems := compare(baseline, candidate)
	fmt.Printf("%-24s %-10s %14s %14s %9s\n", "benchmark", "unit", "baseline", "candidate", "delta")
	for _, r := range results {
		fmt.Printf("%-24s %-10s %14.1f %14.1f %+8.1f%%\n", r.benchmark, r.unit, r.base, r.candidate, r.delta()*100)
		if r.delta() > threshold {
			problems = append(problems, fmt.Sprintf("%s %s slowed by %+.1f%% (limit %+.1f%%)",
				r.benchmark, r.unit, r.delta()*100, threshold*100))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			log.Error(p)
		}
		os.Exit(1)
	}
	log.Info("no regressions")
}

// compare pairs medians of every tracked benchmark/unit. Pairs that cannot
// be compared are reported as problems.
func compare(baseline, candidate samples) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		out      []comparison
		problems []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			b, c := baseline[name][unit], candidate[name][unit]
			if len(b) == 0 || len(c) == 0 {
				problems = append(problems, fmt.Sprintf("no samples for %s %s", name, unit))
				continue
			}
			base := median(b)
			if base <= 0 {
				problems = append(problems, fmt.Sprintf("baseline median for %s %s is not positive", name, unit))
				continue
			}
			out = append(out, comparison{benchmark: name, unit: unit, base: base, candidate: median(c)})
		}
	}
	return out, problems
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, scanner.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends to names.
func trimProcs(raw string) string {
	if i := strings.LastIndexByte(raw, '-'); i > 0 {
		if _, err := strconv.Atoi(raw[i+1:]); err == nil {
			return raw[:i]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
