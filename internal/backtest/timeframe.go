package backtest

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Timeframe declarations found in strategy definitions, in priority order.
// The informative variant only counts when no primary declaration exists.
var timeframeREs = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*timeframe\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?m)^\s*TIMEFRAME\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?m)^\s*informative_timeframe\s*=\s*["']([^"']+)["']`),
}

// TimeframeDetector extracts the declared timeframe from a strategy's
// definition file. Detection results are cached per process; strategy files
// do not change mid-batch.
type TimeframeDetector struct {
	root     string
	ext      string
	fallback string

	mu    sync.Mutex
	cache map[string]string
}

// NewTimeframeDetector returns a detector over the strategies root that
// answers fallback when no declaration is found.
func NewTimeframeDetector(root, ext, fallback string) *TimeframeDetector {
	return &TimeframeDetector{
		root:     root,
		ext:      ext,
		fallback: fallback,
		cache:    make(map[string]string),
	}
}

// Detect returns the strategy's declared timeframe, or the fallback when the
// definition file is missing or carries no declaration.
func (d *TimeframeDetector) Detect(strategy string) string {
	d.mu.Lock()
	if tf, ok := d.cache[strategy]; ok {
		d.mu.Unlock()
		return tf
	}
	d.mu.Unlock()

	tf := d.detect(strategy)

	d.mu.Lock()
	d.cache[strategy] = tf
	d.mu.Unlock()
	return tf
}

func (d *TimeframeDetector) detect(strategy string) string {
	data, ok := d.readDefinition(strategy)
	if !ok {
		return d.fallback
	}
	for _, re := range timeframeREs {
		if m := re.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	return d.fallback
}

// readDefinition tries the nested <root>/<name>/<name>.<ext> layout first,
// then the flat <root>/<name>.<ext> one.
func (d *TimeframeDetector) readDefinition(strategy string) ([]byte, bool) {
	for _, path := range []string{
		filepath.Join(d.root, strategy, strategy+d.ext),
		filepath.Join(d.root, strategy+d.ext),
	} {
		if data, err := os.ReadFile(path); err == nil {
			return data, true
		}
	}
	return nil, false
}
