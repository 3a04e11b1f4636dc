// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bureau-foundation/eventgraph/lib/netutil"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

const apiPrefix = "/_matrix/federation/v1"

// probeLocalpart is the user a make_join template is requested for. The
// template is never signed or sent; only its prev_events and depth are read.
const probeLocalpart = "_eventgraph"

// Resolver maps a server name to the base URL its federation API is
// served at (scheme and authority, no trailing slash).
type Resolver func(server ref.ServerName) (string, error)

// DefaultResolver assumes the server name is directly reachable over
// HTTPS. Well-known and SRV discovery belong in a custom Resolver.
func DefaultResolver(server ref.ServerName) (string, error) {
	return "https://" + server.String(), nil
}

// RequestAuthorizer adds origin authentication to an outgoing request,
// typically an X-Matrix Authorization header signed over body.
type RequestAuthorizer interface {
	Authorize(request *http.Request, origin, destination ref.ServerName, body []byte) error
}

type noAuthorization struct{}

func (noAuthorization) Authorize(*http.Request, ref.ServerName, ref.ServerName, []byte) error {
	return nil
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// ServerName is this server's name, sent as the transaction origin.
	ServerName ref.ServerName

	// HTTPClient performs requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	// Resolve maps remotes to base URLs. Defaults to DefaultResolver.
	Resolve Resolver

	// Authorizer signs requests. Defaults to no authorization.
	Authorizer RequestAuthorizer

	// RequestsPerSecond and Burst rate-limit requests per remote. A
	// non-positive rate disables limiting.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Client talks to remote homeservers over the federation API. It is
// safe for concurrent use.
type Client struct {
	serverName ref.ServerName
	httpClient *http.Client
	resolve    Resolver
	authorizer RequestAuthorizer
	limiters   *limiterPool
	logger     *slog.Logger
}

var (
	_ Fetcher = (*Client)(nil)
	_ Sender  = (*Client)(nil)
)

// NewClient creates a Client.
func NewClient(options ClientOptions) (*Client, error) {
	if options.ServerName.IsZero() {
		return nil, errors.New("federation: server name is required")
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}
	resolve := options.Resolve
	if resolve == nil {
		resolve = DefaultResolver
	}
	authorizer := options.Authorizer
	if authorizer == nil {
		authorizer = noAuthorization{}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		serverName: options.ServerName,
		httpClient: httpClient,
		resolve:    resolve,
		authorizer: authorizer,
		limiters:   newLimiterPool(options.RequestsPerSecond, options.Burst),
		logger:     logger,
	}, nil
}

// ServerName returns this server's name.
func (c *Client) ServerName() ref.ServerName { return c.serverName }

type pduResponse struct {
	Origin         string            `json:"origin"`
	OriginServerTS int64             `json:"origin_server_ts"`
	PDUs           []json.RawMessage `json:"pdus"`
}

// Fetch pulls one event, or a backfill page when request.Limit > 1.
// With a zero request.EventID the page ends at the remote's current
// head events.
func (c *Client) Fetch(ctx context.Context, request FetchRequest) ([]json.RawMessage, error) {
	if request.Server.IsZero() {
		return nil, errors.New("federation: fetch has no server")
	}

	var from []ref.EventID
	if request.EventID.IsZero() {
		head, err := c.FetchHead(ctx, request.Room, request.Server)
		if err != nil {
			return nil, err
		}
		from = head.Events
	} else {
		from = []ref.EventID{request.EventID}
	}
	if len(from) == 0 {
		return nil, nil
	}

	var response pduResponse
	if len(from) == 1 && request.Limit <= 1 {
		path := apiPrefix + "/event/" + url.PathEscape(from[0].String())
		if err := c.doJSON(ctx, http.MethodGet, request.Server, path, nil, nil, &response); err != nil {
			return nil, err
		}
		return response.PDUs, nil
	}

	limit := max(request.Limit, 1)
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	for _, id := range from {
		query.Add("v", id.String())
	}
	path := apiPrefix + "/backfill/" + url.PathEscape(request.Room.String())
	if err := c.doJSON(ctx, http.MethodGet, request.Server, path, query, nil, &response); err != nil {
		return nil, err
	}
	return response.PDUs, nil
}

// FetchHead asks server for a join template and reads the room's head
// from it: the template cites the remote's heads as prev_events and sits
// one above them in depth.
func (c *Client) FetchHead(ctx context.Context, room ref.RoomID, server ref.ServerName) (Head, error) {
	probe, err := ref.ParseUserID("@" + probeLocalpart + ":" + c.serverName.String())
	if err != nil {
		return Head{}, fmt.Errorf("federation: probe user: %w", err)
	}
	path := apiPrefix + "/make_join/" + url.PathEscape(room.String()) + "/" + url.PathEscape(probe.String())

	var response struct {
		Event struct {
			PrevEvents []ref.EventID `json:"prev_events"`
			Depth      int64         `json:"depth"`
		} `json:"event"`
	}
	if err := c.doJSON(ctx, http.MethodGet, server, path, nil, nil, &response); err != nil {
		return Head{}, err
	}
	return Head{
		Events: response.Event.PrevEvents,
		Depth:  max(response.Event.Depth-1, 0),
	}, nil
}

// Send pushes transaction to its destination and returns the remote's
// per-PDU results. PDUs the remote does not mention are absent from the
// map.
func (c *Client) Send(ctx context.Context, transaction Transaction) (map[ref.EventID]PDUResult, error) {
	if transaction.ID == "" {
		return nil, errors.New("federation: transaction has no id")
	}
	if transaction.Origin.IsZero() {
		transaction.Origin = c.serverName
	}
	path := apiPrefix + "/send/" + url.PathEscape(transaction.ID)

	var response struct {
		PDUs map[ref.EventID]PDUResult `json:"pdus"`
	}
	if err := c.doJSON(ctx, http.MethodPut, transaction.Destination, path, nil, transaction, &response); err != nil {
		return nil, err
	}
	return response.PDUs, nil
}

// doJSON performs one rate-limited, authorized request and decodes a 2xx
// JSON response into result. Non-2xx responses become *MatrixError.
func (c *Client) doJSON(ctx context.Context, method string, server ref.ServerName, path string, query url.Values, requestBody, result any) error {
	base, err := c.resolve(server)
	if err != nil {
		return fmt.Errorf("federation: resolving %s: %w", server, err)
	}
	requestURL := base + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var encoded []byte
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("federation: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	if err := c.limiters.get(server).Wait(ctx); err != nil {
		return fmt.Errorf("federation: rate limit for %s: %w", server, err)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("federation: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept-Encoding", "gzip")
	if err := c.authorizer.Authorize(request, c.serverName, server, encoded); err != nil {
		return fmt.Errorf("federation: authorizing request to %s: %w", server, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("federation: %s %s on %s: %w", method, path, server, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response)
	if err != nil {
		return fmt.Errorf("federation: reading response from %s: %w", server, err)
	}

	c.logger.Debug("federation request",
		"method", method,
		"server", server.String(),
		"path", path,
		"status", response.StatusCode,
		"bytes", len(responseBody),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		matrixErr := &MatrixError{StatusCode: response.StatusCode, Server: server}
		if jsonErr := json.Unmarshal(responseBody, matrixErr); jsonErr != nil || matrixErr.Code == "" {
			return fmt.Errorf("federation: unexpected %d response from %s %s on %s: %s",
				response.StatusCode, method, path, server, netutil.ErrorBody(bytes.NewReader(responseBody)))
		}
		return matrixErr
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, result); err != nil {
		return fmt.Errorf("federation: decoding response from %s: %w", server, err)
	}
	return nil
}
