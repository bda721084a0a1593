package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string         `json:"log_level" yaml:"log_level"`
	LogFormat string         `json:"log_format" yaml:"log_format"`
	Ingest    IngestConfig   `json:"ingest" yaml:"ingest"`
	Pipeline  PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Scoring   ScoringConfig  `json:"scoring" yaml:"scoring"`
	Spam      SpamConfig     `json:"spam" yaml:"spam"`
	API       APIConfig      `json:"api" yaml:"api"`
	Storage   StorageConfig  `json:"storage" yaml:"storage"`
	Results   ResultsConfig  `json:"results" yaml:"results"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type PipelineConfig struct {
	MinConfidenceThreshold  float64       `json:"min_confidence_threshold" yaml:"min_confidence_threshold"`
	MaxNotificationsPerHour int           `json:"max_notifications_per_hour" yaml:"max_notifications_per_hour"`
	EnableMLFiltering       bool          `json:"enable_ml_filtering" yaml:"enable_ml_filtering"`
	EnableContextFiltering  bool          `json:"enable_context_filtering" yaml:"enable_context_filtering"`
	EnableBehaviorAnalysis  bool          `json:"enable_behavior_analysis" yaml:"enable_behavior_analysis"`
	EnableAdaptiveFiltering bool          `json:"enable_adaptive_filtering" yaml:"enable_adaptive_filtering"`
	BehaviorCacheSize       int           `json:"behavior_cache_size" yaml:"behavior_cache_size"`
	PredictTimeout          time.Duration `json:"predict_timeout" yaml:"predict_timeout"`
	PredictURL              string        `json:"predict_url" yaml:"predict_url"`
}

// ScoringConfig carries the relevance weights and thresholds. The
// defaults are empirically chosen; override here rather than in code.
type ScoringConfig struct {
	Weights           WeightsConfig `json:"weights" yaml:"weights"`
	RelevanceFloor    float64       `json:"relevance_floor" yaml:"relevance_floor"`
	FatigueBatchLimit int           `json:"fatigue_batch_limit" yaml:"fatigue_batch_limit"`
}

type WeightsConfig struct {
	UserRole           float64 `json:"user_role" yaml:"user_role"`
	WorkflowPhase      float64 `json:"workflow_phase" yaml:"workflow_phase"`
	SystemStatus       float64 `json:"system_status" yaml:"system_status"`
	TimeContext        float64 `json:"time_context" yaml:"time_context"`
	HistoricalPatterns float64 `json:"historical_patterns" yaml:"historical_patterns"`
}

type SpamConfig struct {
	Phrases   []string      `json:"phrases" yaml:"phrases"`
	MinHits   int           `json:"min_hits" yaml:"min_hits"`
	DedupeTTL time.Duration `json:"dedupe_ttl" yaml:"dedupe_ttl"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type ResultsConfig struct {
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
	UserLimit    int `json:"user_limit" yaml:"user_limit"`
}

func DefaultSpamPhrases() []string {
	return []string{
		"click here",
		"act now",
		"limited time",
		"free offer",
		"urgent response required",
		"winner",
		"congratulations",
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Pipeline: PipelineConfig{
			MinConfidenceThreshold:  0.3,
			MaxNotificationsPerHour: 10,
			EnableMLFiltering:       false,
			EnableContextFiltering:  true,
			EnableBehaviorAnalysis:  true,
			EnableAdaptiveFiltering: false,
			BehaviorCacheSize:       1024,
			PredictTimeout:          2 * time.Second,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				UserRole:           0.30,
				WorkflowPhase:      0.25,
				SystemStatus:       0.20,
				TimeContext:        0.15,
				HistoricalPatterns: 0.10,
			},
			RelevanceFloor:    0.3,
			FatigueBatchLimit: 10,
		},
		Spam: SpamConfig{
			Phrases:   DefaultSpamPhrases(),
			MinHits:   2,
			DedupeTTL: time.Minute,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:notigate.db?_pragma=busy_timeout(5000)"},
		Results: ResultsConfig{HistoryLimit: 1000, UserLimit: 5000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Pipeline.BehaviorCacheSize <= 0 {
		cfg.Pipeline.BehaviorCacheSize = 1024
	}
	if cfg.Pipeline.PredictTimeout <= 0 {
		cfg.Pipeline.PredictTimeout = 2 * time.Second
	}
	if len(cfg.Spam.Phrases) == 0 {
		cfg.Spam.Phrases = DefaultSpamPhrases()
	}
	if cfg.Spam.MinHits <= 0 {
		cfg.Spam.MinHits = 2
	}
	if cfg.Results.HistoryLimit <= 0 {
		cfg.Results.HistoryLimit = 1000
	}
	if cfg.Results.UserLimit <= 0 {
		cfg.Results.UserLimit = 5000
	}
	if cfg.Scoring.FatigueBatchLimit <= 0 {
		cfg.Scoring.FatigueBatchLimit = 10
	}
	w := &cfg.Scoring.Weights
	if w.UserRole == 0 && w.WorkflowPhase == 0 && w.SystemStatus == 0 &&
		w.TimeContext == 0 && w.HistoricalPatterns == 0 {
		*w = DefaultConfig().Scoring.Weights
	}
}

func Validate(cfg *Config) error {
	if cfg.Pipeline.MinConfidenceThreshold < 0 || cfg.Pipeline.MinConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.min_confidence_threshold must be in [0,1], got %v", cfg.Pipeline.MinConfidenceThreshold)
	}
	if cfg.Pipeline.MaxNotificationsPerHour < 0 {
		return fmt.Errorf("pipeline.max_notifications_per_hour must be >= 0, got %d", cfg.Pipeline.MaxNotificationsPerHour)
	}
	if cfg.Scoring.RelevanceFloor < 0 || cfg.Scoring.RelevanceFloor > 1 {
		return fmt.Errorf("scoring.relevance_floor must be in [0,1], got %v", cfg.Scoring.RelevanceFloor)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	for _, weight := range []float64{
		cfg.Scoring.Weights.UserRole,
		cfg.Scoring.Weights.WorkflowPhase,
		cfg.Scoring.Weights.SystemStatus,
		cfg.Scoring.Weights.TimeContext,
		cfg.Scoring.Weights.HistoricalPatterns,
	} {
		if weight < 0 {
			return fmt.Errorf("scoring weights must be >= 0, got %v", weight)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
