// Package config loads server configuration: defaults -> TOML file ->
// env vars (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	LLM        LLMConfig        `toml:"llm"`
	Simulation SimulationConfig `toml:"simulation"`
	Traces     TracesConfig     `toml:"traces"`
	Observer   ObserverConfig   `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// MapPath points at a JSON map; empty uses the built-in ship layout.
	MapPath string `toml:"map_path"`
	// BroadcastPath is the websocket endpoint subscribers connect to.
	BroadcastPath string `toml:"broadcast_path"`
}

type LLMConfig struct {
	// BaseURL of an OpenAI-compatible endpoint. Empty runs the simulation
	// headless on canned fallbacks.
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	// TimeoutSeconds bounds each reasoning request end to end.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type SimulationConfig struct {
	NumAgents int   `toml:"num_agents"`
	TickHz    int   `toml:"tick_hz"`
	Seed      int64 `toml:"seed"`

	ThoughtCooldownSeconds  int     `toml:"thought_cooldown_seconds"`
	SpeechCooldownSeconds   int     `toml:"speech_cooldown_seconds"`
	RandomThoughtMinSeconds int     `toml:"random_thought_min_seconds"`
	RandomThoughtMaxSeconds int     `toml:"random_thought_max_seconds"`
	SpeechRange             float64 `toml:"speech_range"`
	ClosePassDistance       float64 `toml:"close_pass_distance"`
	VisionRadius            float64 `toml:"vision_radius"`
	ActionRadius            float64 `toml:"action_radius"`
}

type TracesConfig struct {
	// Path of the SQLite trace database; empty disables persistence.
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", BroadcastPath: "/ws"},
		LLM: LLMConfig{
			Model:          "llama3.1",
			Temperature:    0.8,
			MaxTokens:      200,
			TimeoutSeconds: 10,
		},
		Simulation: SimulationConfig{
			NumAgents: 4,
			TickHz:    10,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "crewsim.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CREWSIM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CREWSIM_MAP_PATH"); v != "" {
		cfg.Server.MapPath = v
	}
	if v := os.Getenv("CREWSIM_BROADCAST_PATH"); v != "" {
		cfg.Server.BroadcastPath = v
	}
	if v := os.Getenv("CREWSIM_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CREWSIM_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CREWSIM_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CREWSIM_NUM_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.NumAgents = n
		}
	}
	if v := os.Getenv("CREWSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("CREWSIM_TRACES_PATH"); v != "" {
		cfg.Traces.Path = v
	}
	if v := os.Getenv("CREWSIM_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
