package soundtouch

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	sterrors "github.com/tessro/stctl/internal/errors"
)

// DefaultTimeout is the request timeout used when none is configured.
const DefaultTimeout = 5 * time.Second

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// transport makes XML requests to one device.
type transport struct {
	httpClient *http.Client
	baseURL    string
}

func newTransport(hostPort string, timeout time.Duration) *transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &transport{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "http://" + hostPort,
	}
}

// do performs a request and returns the body of a successful response.
func (t *transport) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, classify(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, endpoint, classify(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &sterrors.ProtocolError{Status: resp.StatusCode, Body: string(respBody)}
		if name := deviceErrorName(respBody); name != "" {
			perr.Name = name
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, perr)
	}

	// Some devices answer 200 with an <errors> document.
	if name := deviceErrorName(respBody); name != "" {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, &sterrors.ProtocolError{
			Status: resp.StatusCode,
			Name:   name,
			Body:   string(respBody),
		})
	}

	return respBody, nil
}

func (t *transport) get(ctx context.Context, endpoint string) ([]byte, error) {
	return t.do(ctx, http.MethodGet, endpoint, nil)
}

func (t *transport) post(ctx context.Context, endpoint string, v any) error {
	body, err := xml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", endpoint, err)
	}
	_, err = t.do(ctx, http.MethodPost, endpoint, body)
	return err
}

// getXML fetches endpoint and decodes it into v.
func (t *transport) getXML(ctx context.Context, endpoint string, v any) error {
	body, err := t.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return &sterrors.DecodeError{What: endpoint, Err: err}
	}
	return nil
}

// deviceErrorName returns the first error name of an <errors> document.
func deviceErrorName(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !bytes.Contains(trimmed[:min(len(trimmed), 128)], []byte("<errors")) {
		return ""
	}
	var doc errorsXML
	if err := xml.Unmarshal(trimmed, &doc); err != nil {
		return ""
	}
	for _, e := range doc.Errors {
		if e.Name != "" {
			return e.Name
		}
		if e.Value != "" {
			return e.Value
		}
	}
	return "UNKNOWN_ERROR"
}

// classify maps transport failures onto the error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return fmt.Errorf("%w: %v", sterrors.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", sterrors.ErrTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return fmt.Errorf("%w: %v", sterrors.ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", sterrors.ErrUnreachable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", sterrors.ErrUnreachable, err)
	}
	return err
}
