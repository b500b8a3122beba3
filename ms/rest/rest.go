package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logger.NewLogger()

//error codes that are the caller's fault or the carrier's,
//all other error codes are internal errors
var statusByErrorCode = map[string]int{
	"ussd_plugin_incorrect_parameters":   http.StatusBadRequest,
	"ussd_plugin_ussd_execution_failure": http.StatusBadGateway,
}

type handler struct {
	config   Config
	gatherer prometheus.Gatherer
}

func (h *handler) Run(ctx context.Context, s ms.Service) error {
	server := &http.Server{
		Addr:              h.config.Address,
		Handler:           h.router(s),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errChan := make(chan error, 1)
	go func() {
		log.Infof("HTTP service running on %s with methods %v...", h.config.Address, s.Methods())
		errChan <- server.ListenAndServe()
	}()
	select {
	case err := <-errChan:
		return errors.Wrapf(err, "failed to serve on %s", h.config.Address)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrapf(err, "failed to shutdown HTTP server")
	}
	log.Infof("HTTP service stopped")
	return nil
} //handler.Run()

func (h *handler) router(s ms.Service) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	if h.config.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/{method}", func(httpRes http.ResponseWriter, httpReq *http.Request) {
		h.handleCall(s, httpRes, httpReq)
	}).Methods(http.MethodPost)
	return r
}

func handleHealth(httpRes http.ResponseWriter, httpReq *http.Request) {
	writeJSON(httpRes, http.StatusOK, map[string]interface{}{"status": "ok"})
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (h *handler) handleCall(s ms.Service, httpRes http.ResponseWriter, httpReq *http.Request) {
	method := mux.Vars(httpReq)["method"]
	log.Debugf("HTTP %s %s", httpReq.Method, httpReq.URL.Path)

	args, err := decodeArgs(httpReq.Body)
	if err != nil {
		writeJSON(httpRes, http.StatusBadRequest, map[string]interface{}{
			"error": errorBody{Code: "invalid_request", Message: err.Error()},
		})
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if h.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(httpReq.Context(), h.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(httpReq.Context())
	}
	defer cancel()
	reply := ms.NewReply()
	s.Dispatch(ctx, ms.Call{Method: method, Args: args}, reply)
	select {
	case <-reply.Done():
	case <-ctx.Done():
		if httpReq.Context().Err() != nil {
			log.Debugf("client gave up on %s", method)
			return
		}
		writeJSON(httpRes, http.StatusGatewayTimeout, map[string]interface{}{
			"error": errorBody{Code: "timeout", Message: "no reply within " + h.config.Timeout.String()},
		})
		return
	}

	switch reply.Status() {
	case ms.StatusSuccess:
		writeJSON(httpRes, http.StatusOK, map[string]interface{}{"result": reply.Value()})
	case ms.StatusNotImplemented:
		writeJSON(httpRes, http.StatusNotImplemented, map[string]interface{}{
			"error": errorBody{Code: "not_implemented", Message: "method " + method + " is not implemented"},
		})
	default:
		status, ok := statusByErrorCode[reply.Code()]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(httpRes, status, map[string]interface{}{
			"error": errorBody{Code: reply.Code(), Message: reply.Message(), Details: reply.Details()},
		})
	}
} //handler.handleCall()

//decodeArgs expects a JSON object or an empty body, numbers are kept as json.Number
func decodeArgs(body io.Reader) (map[string]interface{}, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body")
	}
	args := map[string]interface{}{}
	if len(bytes.TrimSpace(data)) == 0 {
		return args, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&args); err != nil {
		return nil, errors.Wrapf(err, "body is not a JSON object")
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func writeJSON(httpRes http.ResponseWriter, status int, body interface{}) {
	httpRes.Header().Set("Content-Type", "application/json")
	httpRes.WriteHeader(status)
	if err := json.NewEncoder(httpRes).Encode(body); err != nil {
		log.Errorf("failed to write response: %+v", err)
	}
}
