package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/result"
)

//go:embed default.yaml
var defaultTable []byte

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps model names to prices per 1K tokens.
type Table struct {
	Models map[string]ModelPricing `yaml:"models"`
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &t, nil
}

// Default is the built-in table for common OpenAI models.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds a model's price. A provider prefix such as "openai/" is
// ignored when the full name is not listed.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	if t.Models == nil {
		return ModelPricing{}, false
	}
	if p, ok := t.Models[model]; ok {
		return p, true
	}
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		p, ok := t.Models[model[i+1:]]
		return p, ok
	}
	return ModelPricing{}, false
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// Estimate is the cost of a run broken down by role.
type Estimate struct {
	ByRole map[llm.Role]float64 `json:"by_role"`
	Total  float64              `json:"total_usd"`
	// Unpriced lists models that had usage but no table entry.
	Unpriced []string `json:"unpriced,omitempty"`
}

// ManifestCost prices the per-role usage recorded in a manifest.
func (t *Table) ManifestCost(m *result.Manifest) Estimate {
	models := map[llm.Role]string{
		llm.RoleProblemGenerator: m.Models.ProblemGenerator,
		llm.RoleToolCaller:       m.Models.ToolCaller,
		llm.RoleJudge:            m.Models.Judge,
	}
	est := Estimate{ByRole: make(map[llm.Role]float64)}
	unpriced := map[string]bool{}
	for role, u := range m.Usage {
		model := models[role]
		if _, ok := t.Lookup(model); !ok {
			if u.Total() > 0 {
				unpriced[model] = true
			}
			continue
		}
		c := t.Cost(model, u.InputTokens, u.OutputTokens)
		est.ByRole[role] = c
		est.Total += c
	}
	for model := range unpriced {
		est.Unpriced = append(est.Unpriced, model)
	}
	sort.Strings(est.Unpriced)
	return est
}
