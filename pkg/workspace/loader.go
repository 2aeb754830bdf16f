// Package workspace loads the overview of a data source and checks the
// configured named sources, fetching independent parts in parallel.
package workspace

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/config"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// Overview is the store-wide summary of one source. Each part carries its
// own error so one failing endpoint does not hide the others.
type Overview struct {
	Health        model.Health
	HealthErr     error
	Statistics    model.Statistics
	StatisticsErr error
	Categories    []model.CategoryStat
	CategoriesErr error
	Elapsed       time.Duration
}

// Err returns the first part error, or nil.
func (o Overview) Err() error {
	for _, err := range []error{o.HealthErr, o.StatisticsErr, o.CategoriesErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Failed reports whether every part failed.
func (o Overview) Failed() bool {
	return o.HealthErr != nil && o.StatisticsErr != nil && o.CategoriesErr != nil
}

// CategoryLoader returns the category list, usually from a session cache.
type CategoryLoader func(ctx context.Context) ([]model.CategoryStat, error)

// LoadOverview fetches health, statistics and categories concurrently.
// A nil categories loader asks src directly.
func LoadOverview(ctx context.Context, src datasource.Source, categories CategoryLoader) Overview {
	start := time.Now()
	var o Overview
	if src == nil {
		err := fmt.Errorf("no data source: %w", datasource.ErrUnavailable)
		return Overview{HealthErr: err, StatisticsErr: err, CategoriesErr: err}
	}
	if categories == nil {
		categories = src.Categories
	}

	// Part errors are captured in o, never returned, so no part cancels
	// another.
	var g errgroup.Group
	g.Go(func() error {
		o.Health, o.HealthErr = src.Health(ctx)
		return nil
	})
	g.Go(func() error {
		o.Statistics, o.StatisticsErr = src.Statistics(ctx)
		return nil
	})
	g.Go(func() error {
		o.Categories, o.CategoriesErr = categories(ctx)
		return nil
	})
	_ = g.Wait()

	if len(o.Statistics.Categories) == 0 && o.CategoriesErr == nil {
		o.Statistics.Categories = o.Categories
	}
	o.Elapsed = time.Since(start)
	return o
}

// CheckResult is the reachability of one named source.
type CheckResult struct {
	Name     string
	Location string
	Kind     datasource.Kind
	Health   model.Health
	Latency  time.Duration
	Error    error
}

// Checker checks the configured named sources.
type Checker struct {
	opts   datasource.Options
	limit  int
	logger *log.Logger
}

// NewChecker creates a checker that opens sources with opts.
func NewChecker(opts datasource.Options) *Checker {
	return &Checker{opts: opts, limit: 8}
}

// SetLogger sets the logger for check failures.
func (c *Checker) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// Check opens every source, asks for its health and closes it again.
// Results keep the order of sources.
func (c *Checker) Check(ctx context.Context, sources []config.NamedSource) []CheckResult {
	results := make([]CheckResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for i, s := range sources {
		g.Go(func() error {
			results[i] = c.checkOne(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Error != nil {
			c.logCheckError(r.Name, r.Error)
		}
	}
	return results
}

func (c *Checker) checkOne(ctx context.Context, s config.NamedSource) CheckResult {
	res := CheckResult{Name: s.Name, Location: s.Location}
	select {
	case <-ctx.Done():
		res.Error = ctx.Err()
		return res
	default:
	}

	start := time.Now()
	src, err := datasource.Open(s.Location, c.opts)
	if err != nil {
		res.Error = err
		return res
	}
	defer src.Close()
	res.Kind = src.Kind()
	res.Health, res.Error = src.Health(ctx)
	res.Latency = time.Since(start)
	return res
}

func (c *Checker) logCheckError(name string, err error) {
	if c.logger != nil {
		c.logger.Printf("warning: source %s: %v", name, err)
	}
}

// CheckSummary counts check outcomes.
type CheckSummary struct {
	Total   int
	Healthy int
	Failed  int
	Names   []string // names of failed sources
}

// Summarize counts healthy and failed checks.
func Summarize(results []CheckResult) CheckSummary {
	s := CheckSummary{Total: len(results)}
	for _, r := range results {
		if r.Error == nil && r.Health.Healthy() {
			s.Healthy++
			continue
		}
		s.Failed++
		s.Names = append(s.Names, r.Name)
	}
	return s
}
