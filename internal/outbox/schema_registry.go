package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

// errSchemaNotRegistered covers both "subject not found" (40401) and "schema
// not found" (40403) lookup answers.
var errSchemaNotRegistered = errors.New("schema not registered under subject")

// SchemaRegistryClient resolves JSON schema IDs against a Confluent-compatible
// Schema Registry.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client with a ten second timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type schemaRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

// EnsureSchema returns the ID under which schema is registered for subject.
// An unknown schema is registered as the subject's next version, so editing a
// schema in the catalog publishes a new version instead of reusing the old ID.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(schemaRequest{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}

	id, err := c.post(ctx, c.subjectURL(subject, ""), body)
	if err == nil || !errors.Is(err, errSchemaNotRegistered) {
		return id, err
	}
	return c.post(ctx, c.subjectURL(subject, "/versions"), body)
}

func (c *SchemaRegistryClient) post(ctx context.Context, endpoint string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", schemaRegistryContentType)
	req.Header.Set("Accept", schemaRegistryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, errSchemaNotRegistered
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("schema registry POST %s: status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return payload.ID, nil
}

func (c *SchemaRegistryClient) subjectURL(subject, suffix string) string {
	return c.baseURL + "/subjects/" + url.PathEscape(subject) + suffix
}
