// Package ai drives non-player actors with priority-ordered doctrine rules.
package ai

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/logging"
)

// Target selects where a rule's action is aimed.
type Target string

const (
	TargetNone    Target = "none"
	TargetEnemy   Target = "enemy"
	TargetCharge  Target = "charge"
	TargetRetreat Target = "retreat"
	TargetSelf    Target = "self"
)

// ErrInvalidDoctrine wraps every doctrine validation failure.
var ErrInvalidDoctrine = errors.New("invalid doctrine")

//go:embed default_doctrine.yaml
var defaultDoctrine []byte

// RuleSpec is the YAML form of a doctrine rule.
type RuleSpec struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	When     string `yaml:"when"`
	Action   string `yaml:"action"`
	Target   Target `yaml:"target"`
}

// Spec is the YAML form of a doctrine.
type Spec struct {
	Name    string     `yaml:"name"`
	Reserve string     `yaml:"reserve"`
	Rules   []RuleSpec `yaml:"rules"`
}

type rule struct {
	spec    RuleSpec
	kind    action.Kind
	program *vm.Program
}

// Doctrine is a compiled rule set shared by every actor following it.
type Doctrine struct {
	name    string
	reserve cost.ReserveMode
	rules   []rule
	logger  *logging.Logger
}

// Name returns the doctrine name.
func (d *Doctrine) Name() string { return d.name }

// Reserve returns the shot mode actors following the doctrine hold time units for.
func (d *Doctrine) Reserve() cost.ReserveMode { return d.reserve }

// Compile validates the spec and compiles every condition against Env.
func Compile(spec Spec) (*Doctrine, error) {
	var problems []string
	d := &Doctrine{name: spec.Name, reserve: cost.ReserveNone, logger: logging.L()}
	switch mode := cost.ReserveMode(strings.TrimSpace(spec.Reserve)); mode {
	case "", cost.ReserveNone:
	case cost.ReserveSnap, cost.ReserveAuto, cost.ReserveAimed:
		d.reserve = mode
	default:
		problems = append(problems, fmt.Sprintf("unknown reserve mode %q", spec.Reserve))
	}
	for _, rs := range spec.Rules {
		kind, ok := action.ParseKind(rs.Action)
		if !ok {
			problems = append(problems, fmt.Sprintf("rule %q: unknown action %q", rs.Name, rs.Action))
			continue
		}
		switch rs.Target {
		case "":
			rs.Target = TargetNone
		case TargetNone, TargetEnemy, TargetCharge, TargetRetreat, TargetSelf:
		default:
			problems = append(problems, fmt.Sprintf("rule %q: unknown target %q", rs.Name, rs.Target))
			continue
		}
		when := strings.TrimSpace(rs.When)
		if when == "" {
			when = "true"
		}
		program, err := expr.Compile(when, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			problems = append(problems, fmt.Sprintf("rule %q: %v", rs.Name, err))
			continue
		}
		d.rules = append(d.rules, rule{spec: rs, kind: kind, program: program})
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDoctrine, strings.Join(problems, "; "))
	}
	sort.SliceStable(d.rules, func(i, j int) bool { return d.rules[i].spec.Priority > d.rules[j].spec.Priority })
	return d, nil
}

// Parse decodes and compiles a YAML doctrine.
func Parse(data []byte) (*Doctrine, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDoctrine, err)
	}
	return Compile(spec)
}

// Load reads a doctrine file.
func Load(path string) (*Doctrine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in doctrine.
func Default() *Doctrine {
	d, err := Parse(defaultDoctrine)
	if err != nil {
		panic(err)
	}
	return d
}

// eval runs one rule condition; evaluation errors count as no match.
func (d *Doctrine) eval(r rule, env Env) bool {
	out, err := vm.Run(r.program, env)
	if err != nil {
		d.logger.Warn("doctrine rule failed", logging.String("rule", r.spec.Name), logging.Error(err))
		return false
	}
	ok, _ := out.(bool)
	return ok
}
