package types

// Sampling holds the completion options sent with every request.
// Zero values are omitted from the wire request.
type Sampling struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopK        int     `yaml:"top_k" json:"top_k"`
	TopP        float64 `yaml:"top_p" json:"top_p"`
	NumCtx      int     `yaml:"num_ctx" json:"num_ctx"`
	NumPredict  int     `yaml:"num_predict" json:"num_predict"`
	Mirostat    int     `yaml:"mirostat" json:"mirostat"`
	MirostatTau float64 `yaml:"mirostat_tau" json:"mirostat_tau"`
	MirostatEta float64 `yaml:"mirostat_eta" json:"mirostat_eta"`
}

// AgentProfile is an assistant persona. It is treated as immutable for the
// duration of a single send.
type AgentProfile struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Model        string         `yaml:"model" json:"model"`
	Avatar       string         `yaml:"avatar,omitempty" json:"avatar,omitempty"`
	SystemPrompt string         `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Sampling     Sampling       `yaml:"sampling" json:"sampling"`
	Personality  map[string]int `yaml:"personality,omitempty" json:"personality,omitempty"`
}
