package crash

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

// UsingLogger returns a panic handler that logs the panic value along with the
// stack trace and release information, then re-panics.
func UsingLogger(log logger.Logger, opts PanicWrapperOpts) panicHandler {
	return &loggerNotifier{
		log:  log.Child("crash"),
		opts: opts,
	}
}

type loggerNotifier struct {
	log  logger.Logger
	opts PanicWrapperOpts
}

func (n *loggerNotifier) Notify(component string) func() {
	return func() {
		if r := recover(); r != nil {
			n.log.Errorn("goroutine panicked",
				logger.NewStringField("component", component),
				logger.NewStringField("appType", n.opts.AppType),
				logger.NewStringField("appVersion", n.opts.AppVersion),
				logger.NewStringField("releaseStage", n.opts.ReleaseStage),
				logger.NewStringField("panic", fmt.Sprintf("%v", r)),
				logger.NewStringField("stacktrace", string(debug.Stack())),
			)
			panic(r)
		}
	}
}

func (n *loggerNotifier) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				n.log.Errorn("http handler panicked",
					logger.NewStringField("path", r.URL.Path),
					logger.NewStringField("panic", fmt.Sprintf("%v", rec)),
					logger.NewStringField("stacktrace", string(debug.Stack())),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		h.ServeHTTP(w, r)
	})
}
