package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

const (
	one_hundred_kb   = 102400
	response_timeout = 2 * time.Second
)

type httpServer struct {
	bus        *pubsub.Pubsub
	logger     *logging.Logger
	paths      []string
	pathsMutex sync.RWMutex
	timeout    time.Duration
}

func Init(bus *pubsub.Pubsub, logger *logging.Logger, port int) {
	server := newServer(bus, logger)

	// listen for adapters registering paths
	go func() {
		server.listenForPaths()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", server.ServeHTTP)

	err := http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux)
	if err != nil {
		logger.Fatal(fmt.Sprintf("http: unable to start http server (%v)", err))
	}
}

// RegisterPath asks the server to route requests for path onto the bus as
// http-request:<path> events.
func RegisterPath(bus *pubsub.Pubsub, path string) {
	bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "http:register-path",
		Data:  pubsub.NewValueEvent(path),
	}
}

// Respond answers the request identified by reqUUID.
func Respond(bus *pubsub.Pubsub, reqUUID string, status int, body string) {
	bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: fmt.Sprintf("http-response:%s", reqUUID),
		Data:  pubsub.NewHttpResponseEvent(status, body, reqUUID),
	}
}

func newServer(bus *pubsub.Pubsub, logger *logging.Logger) *httpServer {
	return &httpServer{
		bus:     bus,
		logger:  logger,
		paths:   []string{},
		timeout: response_timeout,
	}
}

func (server *httpServer) listenForPaths() {
	subRegister, _ := server.bus.Subscribe("http:register-path")
	defer subRegister.Close()

	for event := range subRegister.Ch {
		server.addPath(event.Value)
	}
}

func (server *httpServer) addPath(path string) {
	server.pathsMutex.Lock()
	defer server.pathsMutex.Unlock()
	server.logger.Debug(fmt.Sprintf("http: registering path (%s)", path))
	server.paths = append(server.paths, path)
}

func (server *httpServer) willServePath(path string) bool {
	server.pathsMutex.RLock()
	defer server.pathsMutex.RUnlock()
	for _, p := range server.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (server *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Do we have anything that'll serve this path? If not, bail early
	if !server.willServePath(r.URL.Path) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	reqUUID, err := uuid.NewRandom()
	if err != nil {
		http.Error(w, fmt.Sprintf("ERR: %v", err), http.StatusInternalServerError)
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, one_hundred_kb+1))
	if err != nil {
		http.Error(w, fmt.Sprintf("ERR: %v", err), http.StatusBadRequest)
		return
	}

	if len(body) > one_hundred_kb {
		http.Error(w, "ERR: Request body must be 100Kb or less", http.StatusBadRequest)
		return
	}

	subResponse, err := server.bus.Subscribe(fmt.Sprintf("http-response:%s", reqUUID.String()))
	if err != nil {
		http.Error(w, fmt.Sprintf("ERR: %v", err), http.StatusServiceUnavailable)
		return
	}
	defer subResponse.Close()

	// TODO we need a richer way to pass the HTTP request across the bus, including headers
	server.bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: fmt.Sprintf("http-request:%s", r.URL.Path),
		Data:  pubsub.NewHttpRequestEvent(reqUUID.String(), string(body)),
	}

	// We'll only wait this long for a response to arrive on the bus, then return an error
	select {
	case event := <-subResponse.Ch:
		responseCode, err := strconv.Atoi(event.Key)
		if err != nil {
			http.Error(w, fmt.Sprintf("ERR: failed to generate status code (%v)", err), http.StatusInternalServerError)
			return
		}
		if responseCode >= 200 && responseCode <= 299 {
			w.WriteHeader(responseCode)
			fmt.Fprint(w, event.Value)
		} else {
			http.Error(w, event.Value, responseCode)
		}
	case <-time.After(server.timeout):
		http.Error(w, "Timed out waiting for a response to be generated", http.StatusServiceUnavailable)
	}
}
