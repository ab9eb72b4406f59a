package proxy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// supportedMethods is the closed set of methods the proxy forwards.
var supportedMethods = map[string]struct{}{
	"GET":     {},
	"POST":    {},
	"PUT":     {},
	"DELETE":  {},
	"PATCH":   {},
	"HEAD":    {},
	"OPTIONS": {},
}

// SupportedMethods returns the supported HTTP methods in sorted order.
func SupportedMethods() []string {
	out := make([]string, 0, len(supportedMethods))
	for m := range supportedMethods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// IsSupportedMethod reports whether method (already upper-cased) is supported.
func IsSupportedMethod(method string) bool {
	_, ok := supportedMethods[method]
	return ok
}

// Event is the untyped key-value form of an inbound request, as produced
// by decoding a JSON invocation payload.
type Event = map[string]any

// Event keys. The alternates are accepted for events shaped like API
// gateway payloads.
const (
	keyMethod       = "method"
	keyMethodAlt    = "httpMethod"
	keyPath         = "path"
	keyPathAlt      = "url"
	keyParams       = "params"
	keyData         = "data"
	keyDataAlt      = "body"
	keyHeaders      = "headers"
	keyTransformOpt = "transform"
)

// Descriptor is a validated, normalised inbound request.
type Descriptor struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Params  map[string]string `json:"params,omitempty"`
	Body    any               `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate normalises the method to upper case and checks the descriptor
// invariants. It is used for descriptors built directly from wire requests.
func (d *Descriptor) Validate() error {
	if d == nil {
		return NewMalformedEventError("", "descriptor is nil")
	}
	if d.Method == "" {
		return NewMalformedEventError(keyMethod, "missing required field")
	}
	if d.Path == "" {
		return NewMalformedEventError(keyPath, "missing required field")
	}

	method := strings.ToUpper(d.Method)
	if !IsSupportedMethod(method) {
		return newInvalidMethodError(method)
	}
	if err := checkBody(d.Body, d.Headers); err != nil {
		return err
	}
	d.Method = method
	return nil
}

// checkBody reports a body that cannot be encoded for the outbound request,
// so the failure surfaces before routing.
func checkBody(body any, headers map[string]string) error {
	if _, _, err := prepareBody(body, headers); err != nil {
		return NewMalformedEventError(keyData, err.Error())
	}
	return nil
}

// Header returns the value of the named header using a case-insensitive
// match.
func (d *Descriptor) Header(name string) string {
	return lookupHeader(d.Headers, name)
}

// ValidateEvent checks an untyped event and converts it to a Descriptor.
// The event itself is not modified.
func ValidateEvent(raw any) (*Descriptor, error) {
	event, ok := raw.(map[string]any)
	if !ok || event == nil {
		return nil, NewMalformedEventError("", fmt.Sprintf("event must be a key-value structure, got %T", raw))
	}

	method, err := requiredString(event, keyMethod, keyMethodAlt)
	if err != nil {
		return nil, err
	}
	path, err := requiredString(event, keyPath, keyPathAlt)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		Method: strings.ToUpper(method),
		Path:   path,
	}
	if !IsSupportedMethod(desc.Method) {
		return nil, newInvalidMethodError(desc.Method)
	}

	if v, present := event[keyHeaders]; present && v != nil {
		headers, err := toStringMap(v)
		if err != nil {
			return nil, newMalformedHeadersError(err.Error())
		}
		desc.Headers = headers
	}

	if v, present := event[keyParams]; present && v != nil {
		params, err := toScalarMap(v)
		if err != nil {
			return nil, NewMalformedEventError(keyParams, err.Error())
		}
		desc.Params = params
	}

	if v, present := event[keyData]; present {
		desc.Body = v
	} else {
		desc.Body = event[keyDataAlt]
	}
	if err := checkBody(desc.Body, desc.Headers); err != nil {
		return nil, err
	}

	return desc, nil
}

// TransformOptionsValue returns the raw "transform" entry of an event.
func TransformOptionsValue(raw any) (any, bool) {
	event, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := event[keyTransformOpt]
	return v, ok && v != nil
}

func requiredString(event map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		v, present := event[key]
		if !present {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", NewMalformedEventError(key, fmt.Sprintf("must be a string, got %T", v))
		}
		if s == "" {
			return "", NewMalformedEventError(key, "must not be empty")
		}
		return s, nil
	}
	return "", NewMalformedEventError(keys[0], "missing required field")
}

func toStringMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("value of %q must be a string, got %T", k, val)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a key-value mapping, got %T", v)
	}
}

func toScalarMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return toStringMap(m)
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := scalarString(val)
			if !ok {
				return nil, fmt.Errorf("value of %q must be a scalar, got %T", k, val)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a key-value mapping, got %T", v)
	}
}

// scalarString renders a JSON scalar the way it would appear in a query string.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

func lookupHeader(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
