package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nsqe/nsqe/api"
)

// newStreamRequest builds a POST request for an endpoint whose response
// is a long-lived event stream rather than a single JSON body, so the
// caller can read resp.Body incrementally instead of through doJSON.
func newStreamRequest(path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doStream(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to control plane at %s: %w", baseURL(), err)
	}
	return resp, nil
}

// postJSON sends body as JSON to path against the control plane and
// decodes the response into out. A non-2xx response is decoded as an
// api.StatusError and returned so callers can map it to an exit code.
func postJSON(path string, body, out any) (*http.Response, error) {
	return doJSON(http.MethodPost, path, body, out)
}

func getJSON(path string, out any) (*http.Response, error) {
	return doJSON(http.MethodGet, path, nil, out)
}

func doJSON(method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, baseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to control plane at %s: %w", baseURL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var se api.StatusError
		if err := json.NewDecoder(resp.Body).Decode(&se); err != nil {
			return resp, fmt.Errorf("control plane returned %s", resp.Status)
		}
		se.StatusCode = resp.StatusCode
		return resp, se
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// exitCodeFor maps a command error to the CLI's fixed exit code
// contract. Errors that never reached the control plane (connection
// refused, malformed flags) fall back to ExitInternal.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	se, ok := err.(api.StatusError)
	if !ok {
		return ExitInternal
	}
	switch se.Kind {
	case "invalid_input", "precision_unsupported", "insufficient_calibration":
		return ExitInvalidInput
	case "no_viable_route":
		return ExitNoViableRoute
	case "capacity_exhausted", "overloaded":
		return ExitCapacityExhausted
	default:
		return ExitInternal
	}
}
