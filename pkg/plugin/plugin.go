// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package plugin fans client lifecycle and traffic notifications out to
// registered plugins.
//
// A plugin implements any subset of the capability interfaces below.
// Notifications are delivered synchronously in registration order; a
// panicking or failing plugin is logged and skipped without affecting the
// others or the caller.
package plugin

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var log = logger.Logger("plugin")

// Client is the view of the client handed to plugins at initialization
type Client interface {
	IsRunning() bool
}

// InitializationPlugin is notified when the client is constructed.
type InitializationPlugin interface {
	OnInitialization(c Client) error
}

// StartPlugin is notified when the session is established.
type StartPlugin interface {
	OnStart() error
}

// ShutdownPlugin is notified after the session closed.
type ShutdownPlugin interface {
	OnShutdown() error
}

// IncomingFramePlugin sees every decoded inbound frame.
type IncomingFramePlugin interface {
	OnIncomingFrame(f knxnet.Frame)
}

// OutgoingFramePlugin sees every frame written to a socket.
type OutgoingFramePlugin interface {
	OnOutgoingFrame(f knxnet.Frame)
}

// ErrorPlugin is notified about session-level failures.
type ErrorPlugin interface {
	OnError(err error)
}

// Registry holds registered plugins per capability.
type Registry struct {
	mu       sync.RWMutex
	init     []InitializationPlugin
	start    []StartPlugin
	shutdown []ShutdownPlugin
	incoming []IncomingFramePlugin
	outgoing []OutgoingFramePlugin
	errs     []ErrorPlugin
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register files p under every capability it implements. It returns false
// when p implements none.
func (r *Registry) Register(p any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := false
	if v, ok := p.(InitializationPlugin); ok {
		r.init = append(r.init, v)
		matched = true
	}
	if v, ok := p.(StartPlugin); ok {
		r.start = append(r.start, v)
		matched = true
	}
	if v, ok := p.(ShutdownPlugin); ok {
		r.shutdown = append(r.shutdown, v)
		matched = true
	}
	if v, ok := p.(IncomingFramePlugin); ok {
		r.incoming = append(r.incoming, v)
		matched = true
	}
	if v, ok := p.(OutgoingFramePlugin); ok {
		r.outgoing = append(r.outgoing, v)
		matched = true
	}
	if v, ok := p.(ErrorPlugin); ok {
		r.errs = append(r.errs, v)
		matched = true
	}
	if !matched {
		log.Warnw("plugin implements no capability", "plugin", fmt.Sprintf("%T", p))
	}
	return matched
}

// NotifyInitialization calls OnInitialization on every plugin
func (r *Registry) NotifyInitialization(c Client) {
	r.mu.RLock()
	plugins := r.init
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnInitialization", p, func() error { return p.OnInitialization(c) })
	}
}

// NotifyStart calls OnStart on every plugin
func (r *Registry) NotifyStart() {
	r.mu.RLock()
	plugins := r.start
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnStart", p, p.OnStart)
	}
}

// NotifyShutdown calls OnShutdown on every plugin
func (r *Registry) NotifyShutdown() {
	r.mu.RLock()
	plugins := r.shutdown
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnShutdown", p, p.OnShutdown)
	}
}

// NotifyIncoming calls OnIncomingFrame on every plugin
func (r *Registry) NotifyIncoming(f knxnet.Frame) {
	r.mu.RLock()
	plugins := r.incoming
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnIncomingFrame", p, func() error { p.OnIncomingFrame(f); return nil })
	}
}

// NotifyOutgoing calls OnOutgoingFrame on every plugin
func (r *Registry) NotifyOutgoing(f knxnet.Frame) {
	r.mu.RLock()
	plugins := r.outgoing
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnOutgoingFrame", p, func() error { p.OnOutgoingFrame(f); return nil })
	}
}

// NotifyError calls OnError on every plugin
func (r *Registry) NotifyError(err error) {
	r.mu.RLock()
	plugins := r.errs
	r.mu.RUnlock()
	for _, p := range plugins {
		safeCall("OnError", p, func() error { p.OnError(err); return nil })
	}
}

func safeCall(hook string, p any, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("plugin panicked", "hook", hook, "plugin", fmt.Sprintf("%T", p), "panic", rec)
		}
	}()
	if err := fn(); err != nil {
		log.Warnw("plugin failed", "hook", hook, "plugin", fmt.Sprintf("%T", p), "err", err)
	}
}
