package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/MeKo-Tech/tslatency/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

const wsReadTimeout = 5 * time.Second

// HTTPTestServerWrapper wraps an in-process latency server.
type HTTPTestServerWrapper struct {
	Server      *httptest.Server
	TestServer  *server.Server
	Summary     *report.Summary
	Broadcaster *report.Broadcaster
	WebSocket   *websocket.Conn
}

// startTestHTTPServer starts the latency server with the default
// configuration on a loopback port.
func (testCtx *TestContext) startTestHTTPServer() error {
	if testCtx.HTTPTestServer != nil {
		return errors.New("server already running")
	}

	defaults := config.DefaultConfig()
	cfg, err := defaults.ToServerConfig("integration")
	if err != nil {
		return err
	}
	summary := report.NewSummary()
	broadcaster := report.NewBroadcaster()
	srv, err := server.NewServer(cfg, summary, broadcaster)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:      httptest.NewServer(mux),
		TestServer:  srv,
		Summary:     summary,
		Broadcaster: broadcaster,
	}
	return nil
}

// StopServer shuts the in-process server down if one is running.
func (testCtx *TestContext) StopServer() {
	w := testCtx.HTTPTestServer
	if w == nil {
		return
	}
	if w.WebSocket != nil {
		_ = w.WebSocket.Close()
	}
	w.Server.Close()
	testCtx.HTTPTestServer = nil
}

func (testCtx *TestContext) serverURL(path string) (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL + path, nil
}

func (testCtx *TestContext) iSendRequestTo(method, path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iUploadTo posts name as the multipart "image" field. Extra form fields
// come as "key=value" pairs separated by "&".
func (testCtx *TestContext) iUploadTo(name, path string) error {
	return testCtx.iUploadToWith(name, path, "")
}

func (testCtx *TestContext) iUploadToWith(name, path, fields string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return fmt.Errorf("failed to read upload %s: %w", name, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for _, kv := range strings.Split(fields, "&") {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !bytes.Contains(testCtx.LastHTTPResponse, []byte(text)) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, expected string) error {
	doc, err := decodeJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return fieldEquals(doc, field, expected)
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != expected {
		return fmt.Errorf("header %s is %q, want %q", name, got, expected)
	}
	return nil
}

// iSaveTheResponseAs writes the last response body into the scenario
// directory, e.g. a stamped PNG.
func (testCtx *TestContext) iSaveTheResponseAs(name string) error {
	path := testCtx.Path(name)
	if err := os.WriteFile(path, testCtx.LastHTTPResponse, 0o600); err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	testCtx.TrackFile(path)
	return nil
}

// iSubscribeToTheMeasurementStream connects the websocket and consumes the
// hello message, after which the subscription is live.
func (testCtx *TestContext) iSubscribeToTheMeasurementStream() error {
	url, err := testCtx.serverURL("/ws/measurements")
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect websocket: %w", err)
	}
	testCtx.HTTPTestServer.WebSocket = conn

	msg, err := testCtx.readWebSocketMessage()
	if err != nil {
		return err
	}
	if msg.Type != "hello" {
		return fmt.Errorf("expected hello message, got %q", msg.Type)
	}
	return nil
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (testCtx *TestContext) readWebSocketMessage() (wsMessage, error) {
	conn := testCtx.HTTPTestServer.WebSocket
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return msg, fmt.Errorf("failed to read websocket message: %w", err)
	}
	return msg, nil
}

func (testCtx *TestContext) theStreamShouldDeliverAMeasurementWithStatus(status string) error {
	if testCtx.HTTPTestServer == nil || testCtx.HTTPTestServer.WebSocket == nil {
		return errors.New("not subscribed to the measurement stream")
	}
	msg, err := testCtx.readWebSocketMessage()
	if err != nil {
		return err
	}
	if msg.Type != "measurement" {
		return fmt.Errorf("expected measurement message, got %q", msg.Type)
	}
	doc, err := decodeJSON(msg.Payload)
	if err != nil {
		return err
	}
	return fieldEquals(doc, "decode_status", status)
}

// RegisterServerSteps registers steps against the in-process HTTP server.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the latency server is running$`, testCtx.startTestHTTPServer)
	sc.Step(`^I send a (GET|DELETE) request to "([^"]*)"$`, testCtx.iSendRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with "([^"]*)"$`, testCtx.iUploadToWith)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^I save the response as "([^"]*)"$`, testCtx.iSaveTheResponseAs)
	sc.Step(`^I subscribe to the measurement stream$`, testCtx.iSubscribeToTheMeasurementStream)
	sc.Step(`^the stream should deliver a measurement with status "([^"]*)"$`,
		testCtx.theStreamShouldDeliverAMeasurementWithStatus)
}
