package policy

import (
	"net/http"
	"sync"

	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
)

// PolicyChain runs an ordered set of policies for one request and records
// the terminal decision. The serving handler calls Execute and then Wait;
// policies may complete the chain from any goroutine. The first terminal
// transition wins and later ones are ignored.
type PolicyChain struct {
	ec       *ExecutionContext
	policies []Policy

	mu       sync.Mutex
	next     int
	finished bool
	allowed  bool
	result   Result
	done     chan struct{}
}

// NewPolicyChain builds a chain over the given policies, in order.
func NewPolicyChain(ec *ExecutionContext, policies ...Policy) *PolicyChain {
	return &PolicyChain{
		ec:       ec,
		policies: policies,
		done:     make(chan struct{}),
	}
}

// Execute starts the chain. A chain with no policies allows the request.
func (c *PolicyChain) Execute(w http.ResponseWriter, r *http.Request) {
	c.DoNext(w, r)
}

// DoNext implements Chain.
func (c *PolicyChain) DoNext(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	if c.next >= len(c.policies) {
		c.allowed = true
		c.finished = true
		close(c.done)
		c.mu.Unlock()
		return
	}
	p := c.policies[c.next]
	c.next++
	c.mu.Unlock()

	logger.Debug("Applying policy %s to request %s", p.Name(), c.ec.RequestID())
	p.OnRequest(w, r, c.ec, c)
}

// FailWith implements Chain.
func (c *PolicyChain) FailWith(result Result) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		logger.Debug("Ignoring late completion for request %s", c.ec.RequestID())
		return
	}
	c.result = result
	c.finished = true
	close(c.done)
	c.mu.Unlock()
}

// Wait blocks until the chain reaches a terminal state and reports whether
// the request may continue to the upstream. When allowed is false the
// returned Result describes the rejection.
func (c *PolicyChain) Wait() (allowed bool, result Result) {
	<-c.done
	return c.allowed, c.result
}
