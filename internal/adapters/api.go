package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	"workflow-orchestrator/backend/pkg/models"
)

// CredentialSource supplies authenticated clients for named credential
// profiles.
type CredentialSource interface {
	Client(ctx context.Context, name string) (*http.Client, error)
}

// APIAdapter calls external HTTP endpoints.
//
// Step config:
//
//	url:         RFC 6570 template expanded from input fields (required)
//	method:      HTTP method, POST by default
//	headers:     extra request headers
//	credentials: name of an outbound credential profile
//
// GET, HEAD and DELETE send the input as query parameters, other methods
// as a JSON body.
type APIAdapter struct {
	client      *http.Client
	credentials CredentialSource
}

// NewAPIAdapter creates an APIAdapter. credentials may be nil when no
// component uses a credential profile.
func NewAPIAdapter(client *http.Client, credentials CredentialSource) *APIAdapter {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &APIAdapter{client: client, credentials: credentials}
}

// Invoke issues the request described by config and returns the parsed body.
func (a *APIAdapter) Invoke(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error) {
	rawURL, err := stringOption(config, "url", true)
	if err != nil {
		return nil, err
	}
	method, err := stringOption(config, "method", false)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodPost
	}
	headers, err := stringMap(config, "headers")
	if err != nil {
		return nil, err
	}
	profile, err := stringOption(config, "credentials", false)
	if err != nil {
		return nil, err
	}

	target, err := expandURL(rawURL, input)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if sendsQuery(method) {
		q := target.Query()
		addQuery(q, input)
		target.RawQuery = q.Encode()
	} else {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, Permanent(fmt.Errorf("encoding request body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, invalidConfig("building request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := a.client
	if profile != "" {
		if a.credentials == nil {
			return nil, invalidConfig("credentials %q requested but no credential profiles are configured", profile)
		}
		client, err = a.credentials.Client(ctx, profile)
		if err != nil {
			return nil, classifyTransportError(fmt.Errorf("credentials %q: %w", profile, err))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

func sendsQuery(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodDelete
}

// expandURL expands the URL template with scalar, list and object input
// fields. Variables with no matching field expand to nothing.
func expandURL(raw string, input models.Payload) (*url.URL, error) {
	tmpl, err := uritemplate.New(raw)
	if err != nil {
		return nil, invalidConfig("url template: %v", err)
	}
	vars := uritemplate.Values{}
	for _, name := range tmpl.Varnames() {
		switch v := input[name].(type) {
		case nil:
		case []any:
			list := make([]string, 0, len(v))
			for _, el := range v {
				list = append(list, scalarString(el))
			}
			vars.Set(name, uritemplate.List(list...))
		case map[string]any:
			kv := make([]string, 0, 2*len(v))
			for _, k := range sortedKeys(v) {
				kv = append(kv, k, scalarString(v[k]))
			}
			vars.Set(name, uritemplate.KV(kv...))
		default:
			vars.Set(name, uritemplate.String(scalarString(v)))
		}
	}
	expanded, err := tmpl.Expand(vars)
	if err != nil {
		return nil, invalidConfig("url template: %v", err)
	}
	u, err := url.Parse(expanded)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalidConfig("url %q is not absolute", expanded)
	}
	return u, nil
}

func addQuery(q url.Values, input models.Payload) {
	for _, k := range sortedKeys(input) {
		switch v := input[k].(type) {
		case nil:
		case []any:
			for _, el := range v {
				q.Add(k, scalarString(el))
			}
		default:
			q.Set(k, scalarString(v))
		}
	}
}

// scalarString renders a payload value for a URL. Objects become JSON.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// decodeObject parses a JSON body. Non-object values are wrapped under
// "data" and an empty body yields an empty payload.
func decodeObject(data []byte) (models.Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Payload{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, Permanent(fmt.Errorf("%w: response is not JSON: %v", ErrContract, err))
	}
	if obj, ok := v.(map[string]any); ok {
		return obj, nil
	}
	return models.Payload{"data": v}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
