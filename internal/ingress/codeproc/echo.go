// Package codeproc holds small built-in CodeProcessor implementations
// used as sane defaults when no admin-registered processor exists for a
// request code yet.
package codeproc

import (
	"context"

	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/route"
)

// Echo is a CodeProcessor that returns the decoded request body
// unchanged, useful as a liveness/connectivity check request code and as
// a reference implementation for admin-authored processors.
type Echo struct{}

// RejectRequest never self-rejects.
func (Echo) RejectRequest(ctx context.Context) bool { return false }

// ProcessRequest completes the command with its own body as the response.
func (Echo) ProcessRequest(ctx context.Context, actx *async.Context[*route.CodeCommand]) error {
	cmd := actx.Request
	actx.Complete(&route.CodeCommand{
		ResponseCode: 0,
		ResponseMsg:  "SUCCESS",
		ResponseBody: cmd.Body,
	})
	return nil
}

// BuildHeader passes the header map through unchanged.
func (Echo) BuildHeader(code string, headerMap map[string]string) (map[string]string, error) {
	return headerMap, nil
}

// BuildBody passes the body map through unchanged.
func (Echo) BuildBody(code string, bodyMap map[string]any) (map[string]any, error) {
	return bodyMap, nil
}
