package http

import "net/http"

// authTransport sets the credential on a clone so callers' requests are
// never mutated. An empty header means a bearer Authorization header.
type authTransport struct {
	header    string
	token     string
	transport http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.transport.RoundTrip(req)
	}

	reqCopy := req.Clone(req.Context())
	if t.header == "" {
		reqCopy.Header.Set("Authorization", "Bearer "+t.token)
	} else {
		reqCopy.Header.Set(t.header, t.token)
	}

	return t.transport.RoundTrip(reqCopy)
}

func WithAuthToken(token string) HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &authTransport{
			token:     token,
			transport: rt,
		}
	})
}

// WithAPIKeyHeader sends the key in a custom header, e.g. "api-key" for
// Azure OpenAI deployments
func WithAPIKeyHeader(header, key string) HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &authTransport{
			header:    header,
			token:     key,
			transport: rt,
		}
	})
}
