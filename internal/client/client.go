// Package client is the host-side facade over the dispatcher. Callbacks are
// registered per request and fired from Update, on the host's own goroutine.
package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/queue"
)

// Callback receives the result of one request.
type Callback func(queue.Result)

// Submitter is the part of the dispatcher the client drives.
type Submitter interface {
	Submit(req dispatch.Request) queue.RequestID
	FetchNext() (queue.Result, bool)
}

// GameType selects a matchmaking mode.
type GameType int

const (
	GameDuel GameType = iota
	GameAlliances
)

func (g GameType) String() string {
	switch g {
	case GameDuel:
		return "duel"
	case GameAlliances:
		return "alliances"
	default:
		return fmt.Sprintf("GameType(%d)", int(g))
	}
}

// Function names exposed by the backend.
const (
	FunctionHello       = "hello"
	FunctionMatchmaking = "requestMatchmakingGame"
)

// Client tracks callbacks and the session token of the signed-in user.
type Client struct {
	sub    Submitter
	probe  dispatch.Probe
	logger *slog.Logger

	mu        sync.Mutex
	callbacks map[queue.RequestID]Callback
	session   string
}

// New returns a Client. A nil probe means the network is always reported available.
func New(sub Submitter, probe dispatch.Probe) *Client {
	return &Client{
		sub:       sub,
		probe:     probe,
		logger:    log.WithComponent("client"),
		callbacks: make(map[queue.RequestID]Callback),
	}
}

// CallCloudFunction invokes a cloud function with params, a JSON object or "".
func (c *Client) CallCloudFunction(name, params string, cb Callback) queue.RequestID {
	return c.submit(dispatch.Request{Function: name, Params: params}, cb)
}

// Request sends a REST request relative to the backend root.
func (c *Client) Request(method, endpoint, body string, cb Callback) queue.RequestID {
	return c.submit(dispatch.Request{Method: method, Endpoint: endpoint, Body: body}, cb)
}

// LogIn signs a user in. On success the returned session token is attached
// to every later request until LogOut.
func (c *Client) LogIn(username, password string, cb Callback) queue.RequestID {
	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)

	req := dispatch.Request{Method: http.MethodGet, Endpoint: "login?" + q.Encode()}
	return c.submit(req, func(r queue.Result) {
		if r.Succeeded() {
			if token := sessionToken(r.Payload()); token != "" {
				c.mu.Lock()
				c.session = token
				c.mu.Unlock()
				c.logger.Info("logged in", "username", username)
			} else {
				c.logger.Warn("login response carried no session token")
			}
		}
		if cb != nil {
			cb(r)
		}
	})
}

// LogOut forgets the session token and asks the backend to revoke it. It
// reports false when no user was signed in.
func (c *Client) LogOut(cb Callback) (queue.RequestID, bool) {
	c.mu.Lock()
	token := c.session
	c.session = ""
	c.mu.Unlock()
	if token == "" {
		return 0, false
	}

	req := dispatch.Request{Method: http.MethodPost, Endpoint: "logout", SessionToken: token}
	return c.register(req, cb), true
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != ""
}

// RequestMatchmakingGame asks the backend to place the user in a game of type g.
func (c *Client) RequestMatchmakingGame(g GameType, cb Callback) queue.RequestID {
	params, _ := json.Marshal(map[string]string{"gameType": g.String()})
	return c.CallCloudFunction(FunctionMatchmaking, string(params), cb)
}

// Update drains every completed result and fires its callback. Results
// nobody registered for are discarded. It returns the number drained.
func (c *Client) Update() int {
	n := 0
	for {
		r, ok := c.sub.FetchNext()
		if !ok {
			return n
		}
		n++

		c.mu.Lock()
		cb, found := c.callbacks[r.RequestID()]
		delete(c.callbacks, r.RequestID())
		c.mu.Unlock()

		if !found {
			c.logger.Debug("unclaimed result discarded", "request_id", int64(r.RequestID()))
			continue
		}
		if cb != nil {
			cb(r)
		}
	}
}

// NetworkAvailable reports the probe's last answer.
func (c *Client) NetworkAvailable() bool {
	if c.probe == nil {
		return true
	}
	return c.probe.Reachable()
}

// Pending reports how many callbacks are waiting for a result.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callbacks)
}

func (c *Client) submit(req dispatch.Request, cb Callback) queue.RequestID {
	c.mu.Lock()
	req.SessionToken = c.session
	c.mu.Unlock()
	return c.register(req, cb)
}

// register submits req and records cb. The callback map is only read by
// Update, so a result cannot be claimed before its callback is stored as
// long as Update and submissions share the host goroutine.
func (c *Client) register(req dispatch.Request, cb Callback) queue.RequestID {
	id := c.sub.Submit(req)
	c.mu.Lock()
	c.callbacks[id] = cb
	c.mu.Unlock()
	return id
}

func sessionToken(payload string) string {
	var body struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return ""
	}
	return body.SessionToken
}
