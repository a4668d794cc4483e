package server

import (
	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/luci/go-render/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Request struct {
	Name  string
	Args  []string
	Addr  string
	arity int
}

type HandleFunc func(req *Request) (*Reply, error)

type MiddlewareFunc func(handleFn HandleFunc) HandleFunc

func LogMw(handleFn HandleFunc) HandleFunc {
	return func(req *Request) (*Reply, error) {
		logs.Debug("command request",
			zap.String(consts.LogFieldCmd, req.Name),
			zap.String(consts.LogFieldAddr, req.Addr),
			zap.String(consts.LogFieldParams, render.Render(req.Args)),
		)
		resp, err := handleFn(req)
		logs.Debug("command response",
			zap.String(consts.LogFieldCmd, req.Name),
			zap.String(consts.LogFieldValue, render.Render(resp)),
			zap.Error(err),
		)
		return resp, err
	}
}

// ParamsValidateMw 检查参数个数，key 不超过 1KB，value 不超过 1MB
func ParamsValidateMw(handleFn HandleFunc) HandleFunc {
	return func(req *Request) (*Reply, error) {
		n := len(req.Args) + 1
		if (req.arity > 0 && n != req.arity) || (req.arity < 0 && n < -req.arity) {
			e := errs.NewInvalidParamErr().WithErr(errors.Errorf("wrong number of arguments for '%s' command", req.Name))
			logs.Warn(e.Error(), zap.String(consts.LogFieldCmd, req.Name), zap.Int(consts.LogFieldValue, n))
			return nil, e
		}

		for i, arg := range req.Args {
			limit := consts.KB
			if req.Name == "set" && i == 1 {
				limit = consts.MB
			}
			if len(arg) > limit {
				e := errs.NewInvalidParamErr().WithErr(errors.Errorf("argument #%d too long", i+1))
				logs.Warn(e.Error(), zap.String(consts.LogFieldCmd, req.Name), zap.Int(consts.LogFieldValue, len(arg)))
				return nil, e
			}
		}

		return handleFn(req)
	}
}
