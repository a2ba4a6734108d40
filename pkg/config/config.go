package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Prep     PrepConfig     `yaml:"prep"`
	Batching BatchingConfig `yaml:"batching"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`        // HTTP listen address (e.g. :6060)
	BackendURL string `yaml:"backend_url"` // pretrained-model collaborator endpoint
	MaxSrcLen  int    `yaml:"max_src_len"` // longer inputs are truncated before translate
}

type PrepConfig struct {
	MaxSrcLen int  `yaml:"max_src_len"`
	MaxTgtLen int  `yaml:"max_tgt_len"`
	Truncate  bool `yaml:"truncate"` // truncate over-length records instead of skipping
	Workers   int  `yaml:"workers"`  // tokenizer pool size, 0 = GOMAXPROCS
}

type BatchingConfig struct {
	BatchSize  int    `yaml:"batch_size"` // token budget per batch
	SortBy     string `yaml:"sort_by"`    // store scan order / bucketing strategy
	LenRand    int    `yaml:"len_rand"`   // jitter window for length-sorted scans
	Seed       int64  `yaml:"seed"`       // RNG seed for shuffles and bucket order
	SortDesc   bool   `yaml:"sort_desc"`  // sort each batch by source length, longest first
	BatchFirst bool   `yaml:"batch_first"`
	KeepInMem  bool   `yaml:"keep_in_mem"` // wrap the store in the in-memory cache
	PadVal     int64  `yaml:"pad_val"`
	BOSVal     int64  `yaml:"bos_val"`
	EOSVal     int64  `yaml:"eos_val"`
	AddBOSX    bool   `yaml:"add_bos_x"`
	AddEOSX    bool   `yaml:"add_eos_x"`
	AddBOSY    bool   `yaml:"add_bos_y"`
	AddEOSY    bool   `yaml:"add_eos_y"`
}

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:      ":6060",
			MaxSrcLen: 250,
		},
		Prep: PrepConfig{
			MaxSrcLen: 512,
			MaxTgtLen: 512,
		},
		Batching: BatchingConfig{
			BatchSize:  2048,
			SortBy:     "random",
			LenRand:    2,
			Seed:       1,
			BatchFirst: true,
			PadVal:     0,
			BOSVal:     1,
			EOSVal:     2,
			AddEOSX:    true,
			AddEOSY:    true,
		},
	}

	if configPath == "" {
		for _, p := range []string{"configs/server.yaml", "server.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MaxSrcLen <= 0 {
		cfg.Server.MaxSrcLen = 250
	}
	if cfg.Prep.MaxSrcLen <= 0 {
		cfg.Prep.MaxSrcLen = 512
	}
	if cfg.Prep.MaxTgtLen <= 0 {
		cfg.Prep.MaxTgtLen = 512
	}
	if cfg.Batching.BatchSize <= 0 {
		cfg.Batching.BatchSize = 2048
	}
	if cfg.Batching.SortBy == "" {
		cfg.Batching.SortBy = "random"
	}
	if cfg.Batching.LenRand < 1 {
		cfg.Batching.LenRand = 2
	}
}
