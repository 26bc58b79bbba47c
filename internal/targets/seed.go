// Package targets loads monitored targets from a YAML seed file and upserts
// them into a TargetStore.
package targets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// File is the seed file layout.
type File struct {
	Targets []Entry `yaml:"targets"`
}

// Entry describes one target. Active defaults to true and Priority to medium.
type Entry struct {
	URL         string   `yaml:"url"`
	DisplayName string   `yaml:"display_name"`
	Priority    string   `yaml:"priority"`
	Keywords    []string `yaml:"keywords"`
	Active      *bool    `yaml:"active"`
}

// LoadFile reads and validates the seed file at path.
func LoadFile(path string) ([]monitor.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates a seed document.
func Parse(r io.Reader) ([]monitor.Target, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode targets: %w", err)
	}

	seen := make(map[string]int, len(file.Targets))
	out := make([]monitor.Target, 0, len(file.Targets))
	for i, e := range file.Targets {
		t, err := e.toTarget()
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if prev, dup := seen[t.URL]; dup {
			return nil, fmt.Errorf("targets[%d]: url %q duplicates targets[%d]", i, t.URL, prev)
		}
		seen[t.URL] = i
		out = append(out, t)
	}
	return out, nil
}

func (e Entry) toTarget() (monitor.Target, error) {
	raw := strings.TrimSpace(e.URL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return monitor.Target{}, fmt.Errorf("url %q must be an absolute http(s) url", e.URL)
	}

	priority := monitor.Priority(strings.ToLower(strings.TrimSpace(e.Priority)))
	switch priority {
	case "":
		priority = monitor.PriorityMedium
	case monitor.PriorityLow, monitor.PriorityMedium, monitor.PriorityHigh:
	default:
		return monitor.Target{}, fmt.Errorf("priority %q must be low, medium or high", e.Priority)
	}

	// Keywords keep surrounding spaces so " fee" does not match "coffee".
	keywords := make([]string, 0, len(e.Keywords))
	for _, k := range e.Keywords {
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return monitor.Target{
		URL:         raw,
		DisplayName: strings.TrimSpace(e.DisplayName),
		Priority:    priority,
		Keywords:    keywords,
		Active:      active,
	}, nil
}

// Seed upserts targets into store and returns how many were written.
func Seed(ctx context.Context, store monitor.TargetStore, targets []monitor.Target, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, t := range targets {
		saved, err := store.Upsert(ctx, t)
		if err != nil {
			return i, fmt.Errorf("upsert target %q: %w", t.URL, err)
		}
		logger.Debug("target seeded",
			zap.Int64("target_id", saved.ID),
			zap.String("url", saved.URL),
			zap.Bool("active", saved.Active),
		)
	}
	logger.Info("targets seeded", zap.Int("count", len(targets)))
	return len(targets), nil
}
