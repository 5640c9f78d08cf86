package config

// Settings is a read-only keyed view of a Config. Unknown keys return the
// zero value.
type Settings struct {
	values map[string]any
}

func NewSettings(c *Config) *Settings {
	v := map[string]any{
		"torch_timer":         c.Timers.TorchSeconds,
		"idle_timeout":        c.Timers.IdleTimeoutSeconds,
		"success_return_idle": c.Timers.SuccessReturnIdleSeconds,
		"printing_steady":     c.Features.PrintingSteadyColor,
		"heatup_tool_enabled": c.Features.HeatupToolEnabled,
		"heatup_bed_enabled":  c.Features.HeatupBedEnabled,
		"at_command_reaction": c.Features.AtCommandReaction,
		"intercept_m150":      c.Features.InterceptM150,
	}
	for name, e := range c.Effects {
		v[name+"_enabled"] = e.Enabled
		v[name+"_color"] = e.Color
	}
	return &Settings{values: v}
}

func (s *Settings) GetBool(key string) bool {
	b, _ := s.values[key].(bool)
	return b
}

func (s *Settings) GetInt(key string) int {
	i, _ := s.values[key].(int)
	return i
}

func (s *Settings) GetString(key string) string {
	str, _ := s.values[key].(string)
	return str
}
