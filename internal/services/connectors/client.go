package connectors

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

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var (
	// ErrConnectorNotFound is returned when Kafka Connect does not know the connector
	ErrConnectorNotFound = errors.New("connector not found")
	// ErrConnectorExists is returned when a connector with the same name is already running
	ErrConnectorExists = errors.New("connector already exists")
)

// ConnectorSpec is the body Kafka Connect expects when creating a connector
type ConnectorSpec struct {
	Name   string            `json:"name"`
	Config map[string]string `json:"config"`
}

// KafkaConnectClient talks to the Kafka Connect REST API.
// Connection failures and 5xx responses are retried.
type KafkaConnectClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewKafkaConnectClient creates a client for the Kafka Connect endpoint at baseURL
func NewKafkaConnectClient(baseURL string, retryMax int, logger *zap.Logger) *KafkaConnectClient {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = &leveledLogger{logger.Sugar()}
	}

	return &KafkaConnectClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// CreateConnector registers a connector: POST /connectors/
func (c *KafkaConnectClient) CreateConnector(ctx context.Context, spec *ConnectorSpec) error {
	status, body, err := c.do(ctx, http.MethodPost, "/connectors/", spec)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", spec.Name, ErrConnectorExists)
	}
	return fmt.Errorf("failed to create connector %s: kafka connect returned %d: %s", spec.Name, status, body)
}

// UpdateConnectorConfig replaces the configuration of a connector: PUT /connectors/<name>/config
func (c *KafkaConnectClient) UpdateConnectorConfig(ctx context.Context, name string, config map[string]string) error {
	status, body, err := c.do(ctx, http.MethodPut, "/connectors/"+url.PathEscape(name)+"/config", config)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	}
	return fmt.Errorf("failed to update connector %s: kafka connect returned %d: %s", name, status, body)
}

// DeleteConnector removes a connector: DELETE /connectors/<name>/
func (c *KafkaConnectClient) DeleteConnector(ctx context.Context, name string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/connectors/"+url.PathEscape(name)+"/", nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", name, ErrConnectorNotFound)
	}
	return fmt.Errorf("failed to delete connector %s: kafka connect returned %d: %s", name, status, body)
}

func (c *KafkaConnectClient) do(ctx context.Context, method, path string, payload interface{}) (int, string, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, "", fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to reach kafka connect: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return 0, "", fmt.Errorf("failed to read kafka connect response: %w", err)
	}
	return resp.StatusCode, string(bytes.TrimSpace(respBody)), nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	sugar *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
