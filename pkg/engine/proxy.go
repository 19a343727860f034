// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package engine

import (
	"context"

	"github.com/cpackham-atlnz/apteryx/pkg/registry"
)

// ProxyDialer forwards operations to a remote apteryx instance on
// behalf of a proxy registration (spec.md §4.4.8). handled reports
// whether the remote actually answered; when it is false (the proxy
// is absent or unreachable) the engine falls through to the local
// tree, per spec.md: "When a proxy is absent or unreachable, the
// operation falls through to the local tree."
type ProxyDialer interface {
	ProxySet(ctx context.Context, uri, path string, value []byte) (handled bool, err error)
	ProxyCas(ctx context.Context, uri, path string, value []byte, expectedTs int64) (handled bool, err error)
	ProxyGet(ctx context.Context, uri, path string) (handled bool, value []byte, ok bool, err error)
	ProxySearch(ctx context.Context, uri, prefix string) (handled bool, children []string, err error)
	ProxyPrune(ctx context.Context, uri, path string) (handled bool, err error)
	ProxyTimestamp(ctx context.Context, uri, path string) (handled bool, ts int64, exists bool, err error)
}

// noProxy is used when an Engine is built without a dialer: every
// proxy lookup is simply never handled remotely.
type noProxy struct{}

func (noProxy) ProxySet(context.Context, string, string, []byte) (bool, error) { return false, nil }
func (noProxy) ProxyCas(context.Context, string, string, []byte, int64) (bool, error) {
	return false, nil
}
func (noProxy) ProxyGet(context.Context, string, string) (bool, []byte, bool, error) {
	return false, nil, false, nil
}
func (noProxy) ProxySearch(context.Context, string, string) (bool, []string, error) {
	return false, nil, nil
}
func (noProxy) ProxyPrune(context.Context, string, string) (bool, error) { return false, nil }
func (noProxy) ProxyTimestamp(context.Context, string, string) (bool, int64, bool, error) {
	return false, 0, false, nil
}

// proxyRecordFor returns the most-specific live proxy registration
// covering path, if any. Callers must Release it.
func (e *Engine) proxyRecordFor(path string) (*registry.Record, bool, error) {
	recs, err := e.reg.Match(registry.Proxy, path)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	for _, r := range recs[1:] {
		r.Release()
	}
	return recs[0], true, nil
}

func (e *Engine) proxySet(ctx context.Context, path string, value []byte) (handled bool, err error) {
	rec, ok, err := e.proxyRecordFor(path)
	if err != nil || !ok {
		return false, err
	}
	defer rec.Release()
	return e.proxy.ProxySet(ctx, rec.ProxyURI, path, value)
}

func (e *Engine) proxyCas(ctx context.Context, path string, value []byte, expectedTs int64) (handled bool, err error) {
	rec, ok, err := e.proxyRecordFor(path)
	if err != nil || !ok {
		return false, err
	}
	defer rec.Release()
	return e.proxy.ProxyCas(ctx, rec.ProxyURI, path, value, expectedTs)
}

func (e *Engine) proxyGet(ctx context.Context, path string) (handled bool, value []byte, ok bool, err error) {
	rec, found, err := e.proxyRecordFor(path)
	if err != nil || !found {
		return false, nil, false, err
	}
	defer rec.Release()
	return e.proxy.ProxyGet(ctx, rec.ProxyURI, path)
}

func (e *Engine) proxySearch(ctx context.Context, prefix string) (handled bool, children []string, err error) {
	rec, ok, err := e.proxyRecordFor(prefix)
	if err != nil || !ok {
		return false, nil, err
	}
	defer rec.Release()
	return e.proxy.ProxySearch(ctx, rec.ProxyURI, prefix)
}

func (e *Engine) proxyPrune(ctx context.Context, path string) (handled bool, err error) {
	rec, ok, err := e.proxyRecordFor(path)
	if err != nil || !ok {
		return false, err
	}
	defer rec.Release()
	return e.proxy.ProxyPrune(ctx, rec.ProxyURI, path)
}

func (e *Engine) proxyTimestamp(ctx context.Context, path string) (handled bool, ts int64, exists bool, err error) {
	rec, ok, err := e.proxyRecordFor(path)
	if err != nil || !ok {
		return false, 0, false, err
	}
	defer rec.Release()
	return e.proxy.ProxyTimestamp(ctx, rec.ProxyURI, path)
}
