package plan

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Plan file shape:
//
//	grace = "2s"
//
//	attempt "Software OpenGL" {
//	  env = {
//	    LIBGL_ALWAYS_SOFTWARE = "1"
//	  }
//	}
//
// Attempts are probed in declaration order.

var planSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "grace"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "attempt", LabelNames: []string{"label"}},
	},
}

var attemptSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "env"},
	},
}

// Load reads a probe plan from an HCL file.
func Load(path string) (Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Plan{}, fmt.Errorf("parsing plan %s: %w", path, diags)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (Plan, error) {
	content, diags := body.Content(planSchema)
	if diags.HasErrors() {
		return Plan{}, diags
	}

	out := Plan{Grace: DefaultGrace}

	if attr, ok := content.Attributes["grace"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return Plan{}, diags
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil {
			return Plan{}, fmt.Errorf("grace: %w", err)
		}
		d, err := time.ParseDuration(str.AsString())
		if err != nil {
			return Plan{}, fmt.Errorf("grace: %w", err)
		}
		if d <= 0 {
			return Plan{}, fmt.Errorf("grace must be positive, got %s", d)
		}
		out.Grace = d
	}

	for _, block := range content.Blocks {
		cfg, err := decodeAttempt(block)
		if err != nil {
			return Plan{}, err
		}
		out.Attempts = append(out.Attempts, cfg)
	}
	return out, nil
}

func decodeAttempt(block *hcl.Block) (BackendConfig, error) {
	label := block.Labels[0]
	if label == "" {
		return BackendConfig{}, fmt.Errorf("%s: attempt label must not be empty", block.DefRange)
	}

	content, diags := block.Body.Content(attemptSchema)
	if diags.HasErrors() {
		return BackendConfig{}, diags
	}

	cfg := BackendConfig{Label: label}

	if attr, ok := content.Attributes["env"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return BackendConfig{}, diags
		}
		env, err := envFromCty(val)
		if err != nil {
			return BackendConfig{}, fmt.Errorf("attempt %q: %w", label, err)
		}
		cfg.Env = env
	}
	return cfg, nil
}

// envFromCty flattens an HCL object/map value into string pairs.
func envFromCty(val cty.Value) (map[string]string, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("env must be a map of strings, got %s", val.Type().FriendlyName())
	}

	env := make(map[string]string)
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k.AsString(), err)
		}
		if str.IsNull() {
			return nil, fmt.Errorf("env %s: value must not be null", k.AsString())
		}
		env[k.AsString()] = str.AsString()
	}
	return env, nil
}
