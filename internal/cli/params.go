package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

// paramFlags collects task parameters from --params (a JSON object) and
// repeated --param key=value pairs. Pairs win over the JSON object.
type paramFlags struct {
	raw   string
	pairs []string
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.raw, "params", "", `task parameters as a JSON object, e.g. '{"topic":"focus"}'`)
	cmd.Flags().StringArrayVarP(&p.pairs, "param", "p", nil, "task parameter as key=value (repeatable)")
}

func (p *paramFlags) changed(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("params") || cmd.Flags().Changed("param")
}

func (p *paramFlags) parse() (task.Params, error) {
	out := task.Params{}
	if strings.TrimSpace(p.raw) != "" {
		if err := json.Unmarshal([]byte(p.raw), &out); err != nil {
			return nil, fmt.Errorf("--params: %w", err)
		}
	}
	for _, kv := range p.pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--param %q: want key=value", kv)
		}
		out[k] = scalar(v)
	}
	return out, nil
}

// scalar keeps numbers and booleans typed so executors see the same values
// a JSON task file would give them.
func scalar(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return v
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return n, nil
}
