package billing

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	metering "tariff-billing/internal/metering/domain"
	tariff "tariff-billing/internal/tariff/domain"
)

// Assembler evaluates every charge of a tariff into line items.
type Assembler struct {
	concurrency int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithConcurrency evaluates up to n charges at once. Values below 2 keep
// evaluation sequential.
func WithConcurrency(n int) AssemblerOption {
	return func(a *Assembler) {
		a.concurrency = n
	}
}

// NewAssembler constructs an assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{concurrency: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// CalculateTariff classifies the series against def, aggregates it once and
// evaluates every charge in tariff order. Any failing charge fails the run
// and no partial items are returned.
func (a *Assembler) CalculateTariff(def *tariff.Definition, series metering.Series, voltage string) ([]LineItem, *AggregateView, error) {
	if def == nil {
		return nil, nil, ErrNilTariff
	}
	classifier, err := tariff.NewClassifier(def)
	if err != nil {
		return nil, nil, err
	}
	classified, err := Classify(series, classifier)
	if err != nil {
		return nil, nil, err
	}
	view := Aggregate(classified)
	items, err := a.Evaluate(def, view, voltage)
	if err != nil {
		return nil, nil, err
	}
	return items, view, nil
}

// Evaluate runs every charge of def over an existing view.
func (a *Assembler) Evaluate(def *tariff.Definition, view *AggregateView, voltage string) ([]LineItem, error) {
	if def == nil {
		return nil, ErrNilTariff
	}
	if voltage == "" {
		return nil, ErrEmptyVoltageType
	}
	funcs := make([]Evaluator, len(def.Charges))
	for i, spec := range def.Charges {
		ev, err := EvaluatorFor(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("billing: charge %s: %w", spec.Name, err)
		}
		funcs[i] = ev
	}

	items := make([]LineItem, len(def.Charges))
	errs := make([]error, len(def.Charges))
	if a.concurrency < 2 {
		for i, spec := range def.Charges {
			items[i], errs[i] = funcs[i](spec, view, voltage)
			if errs[i] != nil {
				break
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, spec := range def.Charges {
			i, spec := i, spec
			g.Go(func() error {
				items[i], errs[i] = funcs[i](spec, view, voltage)
				return nil
			})
		}
		_ = g.Wait()
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("billing: charge %s: %w", def.Charges[i].Name, err)
		}
	}
	return items, nil
}

// CalculateTariff evaluates def sequentially.
func CalculateTariff(def *tariff.Definition, series metering.Series, voltage string) ([]LineItem, error) {
	items, _, err := NewAssembler().CalculateTariff(def, series, voltage)
	return items, err
}
