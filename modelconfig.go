package immagent

import "encoding/json"

// ModelConfig holds the sampling knobs sent to the completion provider.
// Recognized knobs are typed; anything else round-trips through Extra so
// provider-specific keys survive storage unmodified. Validation of values
// is left to the provider.
type ModelConfig struct {
	Temperature      *float64 `json:"-"`
	MaxTokens        *int64   `json:"-"`
	TopP             *float64 `json:"-"`
	TopK             *int64   `json:"-"`
	Stop             []string `json:"-"`
	FrequencyPenalty *float64 `json:"-"`
	PresencePenalty  *float64 `json:"-"`

	// Extra carries unrecognized keys verbatim.
	Extra map[string]any `json:"-"`
}

// IsZero reports whether no knob is set.
func (c ModelConfig) IsZero() bool {
	return c.Temperature == nil && c.MaxTokens == nil && c.TopP == nil &&
		c.TopK == nil && c.Stop == nil && c.FrequencyPenalty == nil &&
		c.PresencePenalty == nil && len(c.Extra) == 0
}

// Merge returns a copy of c with every knob set in override applied on top.
// Neither receiver nor argument is modified.
func (c ModelConfig) Merge(override ModelConfig) ModelConfig {
	out := c
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK != nil {
		out.TopK = override.TopK
	}
	if override.Stop != nil {
		out.Stop = override.Stop
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if len(override.Extra) > 0 {
		merged := make(map[string]any, len(c.Extra)+len(override.Extra))
		for k, v := range c.Extra {
			merged[k] = v
		}
		for k, v := range override.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}

// MarshalJSON flattens known knobs and Extra into a single JSON object.
func (c ModelConfig) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 7+len(c.Extra))
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Temperature != nil {
		m["temperature"] = *c.Temperature
	}
	if c.MaxTokens != nil {
		m["max_tokens"] = *c.MaxTokens
	}
	if c.TopP != nil {
		m["top_p"] = *c.TopP
	}
	if c.TopK != nil {
		m["top_k"] = *c.TopK
	}
	if c.Stop != nil {
		m["stop"] = c.Stop
	}
	if c.FrequencyPenalty != nil {
		m["frequency_penalty"] = *c.FrequencyPenalty
	}
	if c.PresencePenalty != nil {
		m["presence_penalty"] = *c.PresencePenalty
	}
	return json.Marshal(m)
}

// UnmarshalJSON pulls known knobs out of the object and keeps the rest in
// Extra.
func (c *ModelConfig) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = ModelConfig{}
	for key, raw := range m {
		switch key {
		case "temperature":
			if err := json.Unmarshal(raw, &c.Temperature); err != nil {
				return err
			}
		case "max_tokens":
			if err := json.Unmarshal(raw, &c.MaxTokens); err != nil {
				return err
			}
		case "top_p":
			if err := json.Unmarshal(raw, &c.TopP); err != nil {
				return err
			}
		case "top_k":
			if err := json.Unmarshal(raw, &c.TopK); err != nil {
				return err
			}
		case "stop":
			if err := json.Unmarshal(raw, &c.Stop); err != nil {
				return err
			}
		case "frequency_penalty":
			if err := json.Unmarshal(raw, &c.FrequencyPenalty); err != nil {
				return err
			}
		case "presence_penalty":
			if err := json.Unmarshal(raw, &c.PresencePenalty); err != nil {
				return err
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[key] = v
		}
	}
	return nil
}
