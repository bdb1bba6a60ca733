// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger provides per-subsystem zap loggers.
//
// Usage:
//
//	var log = logger.Logger("client")
//
//	log.Infow("connected", "channel", id, "gateway", addr)
//
// Levels are read from KNXSTAT_LOG_LEVEL, formatted as
// subsystem=level pairs followed by an optional default level:
//
//	KNXSTAT_LOG_LEVEL=client=debug,channel=warn,info
//
// KNXSTAT_LOG_FORMAT selects "console" (default) or "json" output.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLevel  = "KNXSTAT_LOG_LEVEL"
	envFormat = "KNXSTAT_LOG_FORMAT"
)

type subsystem struct {
	level  zap.AtomicLevel
	logger *zap.SugaredLogger
}

var (
	loggers sync.Map // map[string]*subsystem

	outputMu sync.RWMutex
	output   zapcore.WriteSyncer = zapcore.Lock(os.Stderr)

	configOnce sync.Once
	config     Config
)

// Config holds the parsed environment configuration.
type Config struct {
	DefaultLevel    zapcore.Level
	SubsystemLevels map[string]zapcore.Level
	JSON            bool
}

// LevelFor returns the configured level of a subsystem
func (c Config) LevelFor(name string) zapcore.Level {
	if l, ok := c.SubsystemLevels[name]; ok {
		return l
	}
	return c.DefaultLevel
}

// ConfigFromEnv parses KNXSTAT_LOG_LEVEL and KNXSTAT_LOG_FORMAT once
func ConfigFromEnv() Config {
	configOnce.Do(func() {
		config = ParseConfig(os.Getenv(envLevel), os.Getenv(envFormat))
	})
	return config
}

// ParseConfig parses a level specification and format name
func ParseConfig(levels, format string) Config {
	cfg := Config{
		DefaultLevel:    zapcore.InfoLevel,
		SubsystemLevels: make(map[string]zapcore.Level),
		JSON:            strings.EqualFold(strings.TrimSpace(format), "json"),
	}

	for _, part := range strings.Split(levels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, found := strings.Cut(part, "=")
		if !found {
			if l, err := zapcore.ParseLevel(part); err == nil {
				cfg.DefaultLevel = l
			}
			continue
		}
		if l, err := zapcore.ParseLevel(strings.TrimSpace(lvl)); err == nil {
			cfg.SubsystemLevels[strings.TrimSpace(name)] = l
		}
	}
	return cfg
}

// Logger returns the logger for a subsystem. Repeated calls return the same
// instance.
func Logger(name string) *zap.SugaredLogger {
	if s, ok := loggers.Load(name); ok {
		return s.(*subsystem).logger
	}

	cfg := ConfigFromEnv()
	level := zap.NewAtomicLevelAt(cfg.LevelFor(name))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, dynamicWriter{}, level)
	s := &subsystem{
		level:  level,
		logger: zap.New(core).Named(name).Sugar(),
	}

	actual, _ := loggers.LoadOrStore(name, s)
	return actual.(*subsystem).logger
}

// SetLevel changes the level of one subsystem at runtime
func SetLevel(name string, level zapcore.Level) {
	Logger(name)
	if s, ok := loggers.Load(name); ok {
		s.(*subsystem).level.SetLevel(level)
	}
}

// SetGlobalLevel changes the level of every subsystem created so far
func SetGlobalLevel(level zapcore.Level) {
	loggers.Range(func(_, v any) bool {
		v.(*subsystem).level.SetLevel(level)
		return true
	})
}

// SetOutput redirects all loggers, including ones already created
func SetOutput(w zapcore.WriteSyncer) {
	outputMu.Lock()
	output = zapcore.Lock(w)
	outputMu.Unlock()
}

// Discard returns a logger that drops everything
func Discard() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// dynamicWriter forwards to the current output
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output.Write(p)
}

func (dynamicWriter) Sync() error {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output.Sync()
}
