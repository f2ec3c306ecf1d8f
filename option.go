// Copyright 2017 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"context"

	"go.mercari.io/dataset/internal"
	"golang.org/x/oauth2"
)

type ClientOption interface {
	Apply(*internal.ClientSettings)
}

// WithProjectID returns a ClientOption that sets the project id. Without it
// the project id is read from the environment or the compute metadata server.
func WithProjectID(projectID string) ClientOption {
	return withProjectID{projectID}
}

type withProjectID struct{ s string }

func (w withProjectID) Apply(o *internal.ClientSettings) {
	o.ProjectID = w.s
}

// WithTokenSource returns a ClientOption that specifies an OAuth2 token
// source to be used as the basis for authentication.
func WithTokenSource(s oauth2.TokenSource) ClientOption {
	return withTokenSource{s}
}

type withTokenSource struct{ ts oauth2.TokenSource }

func (w withTokenSource) Apply(o *internal.ClientSettings) {
	o.TokenSource = w.ts
}

type withCredFile string

func (w withCredFile) Apply(o *internal.ClientSettings) {
	o.CredentialsFile = string(w)
}

// WithCredentialsFile returns a ClientOption that authenticates
// API calls with the given service account or refresh token JSON
// credentials file.
func WithCredentialsFile(filename string) ClientOption {
	return withCredFile(filename)
}

// WithCredentialsJSON returns a ClientOption that authenticates API calls
// with the given service account or refresh token JSON credentials.
func WithCredentialsJSON(p []byte) ClientOption {
	return withCredentialsJSON(p)
}

type withCredentialsJSON []byte

func (w withCredentialsJSON) Apply(o *internal.ClientSettings) {
	o.CredentialsJSON = make([]byte, len(w))
	copy(o.CredentialsJSON, w)
}

// WithScopes returns a ClientOption that overrides the default OAuth2 scopes
// to be used for a service.
func WithScopes(scope ...string) ClientOption {
	return withScopes(scope)
}

type withScopes []string

func (w withScopes) Apply(o *internal.ClientSettings) {
	s := make([]string, len(w))
	copy(s, w)
	o.Scopes = s
}

// WithEndpoint returns a ClientOption that overrides the service endpoint.
func WithEndpoint(endpoint string) ClientOption {
	return withEndpoint(endpoint)
}

type withEndpoint string

func (w withEndpoint) Apply(o *internal.ClientSettings) {
	o.Endpoint = string(w)
}

// WithEmulatorHost returns a ClientOption that connects to a Datastore
// emulator without authentication. DATASTORE_EMULATOR_HOST has the same effect.
func WithEmulatorHost(host string) ClientOption {
	return withEmulatorHost(host)
}

type withEmulatorHost string

func (w withEmulatorHost) Apply(o *internal.ClientSettings) {
	o.EmulatorHost = string(w)
}

// WithLogf returns a ClientOption that receives connection level log messages.
func WithLogf(logf func(ctx context.Context, format string, args ...interface{})) ClientOption {
	return withLogf{logf}
}

type withLogf struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w withLogf) Apply(o *internal.ClientSettings) {
	o.Logf = w.logf
}
