// Package policy implements the request policies the proxy runs in front
// of the upstream, and the chain hosting them.
package policy

import "net/http"

// Policy is one step of the request chain.
//
// OnRequest must complete the chain exactly once, either by calling
// chain.DoNext to let the request continue or chain.FailWith to reject it.
// Completion may happen asynchronously, after OnRequest has returned.
type Policy interface {
	Name() string
	OnRequest(w http.ResponseWriter, r *http.Request, ec *ExecutionContext, chain Chain)
}

// Chain is the view of the request chain handed to a policy.
type Chain interface {
	// DoNext hands the request to the next policy, or to the upstream
	// when the chain is exhausted.
	DoNext(w http.ResponseWriter, r *http.Request)

	// FailWith terminates the chain with a rejection.
	FailWith(result Result)
}

// Result describes a chain rejection. Body is written verbatim when set;
// otherwise a non-empty Message becomes a plain-text body.
type Result struct {
	Status      int
	Message     string
	Body        []byte
	ContentType string
}

// Failure builds a Result carrying only a status and a reason.
func Failure(status int, message string) Result {
	return Result{Status: status, Message: message}
}
