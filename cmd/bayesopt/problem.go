package main

import (
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/bayesopt/internal/optimization"
)

var problemValidate = validator.New()

// Outputs is an observed objective value: a scalar or a list in the problem
// file.
type Outputs []float64

// UnmarshalYAML accepts "y: 1.5" as well as "y: [1.5, 2]".
func (o *Outputs) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := value.Decode(&v); err != nil {
			return err
		}
		*o = Outputs{v}
		return nil
	case yaml.SequenceNode:
		var vs []float64
		if err := value.Decode(&vs); err != nil {
			return err
		}
		*o = vs
		return nil
	default:
		return fmt.Errorf("line %d: y must be a number or a list of numbers", value.Line)
	}
}

// ProblemSample is one observation in a problem file.
type ProblemSample struct {
	X []float64 `yaml:"x" validate:"required,min=1"`
	Y Outputs   `yaml:"y" validate:"required,min=1"`
}

// Problem is an offline optimization state: the search space, optimizer
// settings and every observation so far. Omitted settings take the
// configured defaults.
type Problem struct {
	Bounds             [][]float64     `yaml:"bounds" validate:"required,min=1,dive,len=2"`
	Alpha              *float64        `yaml:"alpha" validate:"omitempty,gte=0"`
	Xi                 *float64        `yaml:"xi" validate:"omitempty,gte=0"`
	Seed               *int64          `yaml:"seed"`
	Restarts           int             `yaml:"restarts" validate:"gte=0"`
	Kernel             string          `yaml:"kernel" validate:"omitempty,oneof=rbf matern52"`
	FitHyperparameters *bool           `yaml:"fit_hyperparameters"`
	Samples            []ProblemSample `yaml:"samples" validate:"required,min=1,dive"`
}

// loadProblem decodes and validates a YAML or JSON problem.
func loadProblem(r io.Reader) (*Problem, error) {
	var p Problem
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("problem file is empty")
		}
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	if err := problemValidate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}
	return &p, nil
}

func (p *Problem) bounds() optimization.Bounds {
	b := make(optimization.Bounds, len(p.Bounds))
	for i, pair := range p.Bounds {
		b[i] = [2]float64{pair[0], pair[1]}
	}
	return b
}
