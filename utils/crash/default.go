package crash

import (
	"net/http"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

var Default panicHandler = &NOOP{}

type panicHandler interface {
	Notify(component string) func()
	Handler(h http.Handler) http.Handler
}

type PanicWrapperOpts struct {
	AppVersion   string
	ReleaseStage string
	AppType      string
}

func Configure(log logger.Logger, opts PanicWrapperOpts) {
	Default = UsingLogger(log, opts)
}

// Wrapper returns fn guarded by the default panic handler, for use with errgroup.
func Wrapper(fn func() error) func() error {
	return func() error {
		defer Default.Notify("Core")()
		return fn()
	}
}

func Notify(component string) func() {
	return Default.Notify(component)
}

// Handler guards h with the default panic handler.
func Handler(h http.Handler) http.Handler {
	return Default.Handler(h)
}
