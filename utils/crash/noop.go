package crash

import "net/http"

// NOOP reports nothing. It is the default handler until Configure installs a
// real one, and keeps tests quiet.
type NOOP struct{}

func (*NOOP) Notify(string) func() {
	return func() {}
}

func (*NOOP) Handler(h http.Handler) http.Handler {
	return h
}
