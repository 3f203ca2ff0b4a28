package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// handler adapts a handler that returns an error.
type handler func(w http.ResponseWriter, r *http.Request) error

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		writeError(w, err)
	}
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func statusFor(err error) int {
	var protoErr *sterrors.ProtocolError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, sterrors.ErrInvalidVolume),
		errors.Is(err, sterrors.ErrInvalidPreset),
		errors.Is(err, sterrors.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, sterrors.ErrDeviceNotRegistered),
		errors.Is(err, sterrors.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, sterrors.ErrNoOtherDevices):
		return http.StatusConflict
	case errors.Is(err, sterrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sterrors.ErrUnreachable),
		errors.Is(err, sterrors.ErrMasterUnreachable),
		errors.As(err, &protoErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error(), Suggestion: sterrors.GetSuggestion(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return badRequest("empty body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// opResult is the response to a multi-device operation.
type opResult struct {
	Refreshed []string `json:"refreshed"`
	Errors    []string `json:"errors,omitempty"`
}

func partial(res *sterrors.PartialResult[[]string]) opResult {
	out := opResult{Refreshed: res.Data}
	if out.Refreshed == nil {
		out.Refreshed = []string{}
	}
	for _, err := range res.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

// device resolves the {id} route variable to a registered device id.
func (s *Server) device(r *http.Request, name string) (string, error) {
	return s.sess.Resolve(mux.Vars(r)[name])
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, s.deviceStates())
	return nil
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		IP   string `json:"ip"`
		Port int    `json:"port"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if body.IP == "" {
		return badRequest("ip is required")
	}

	res := s.sess.AddStatic(r.Context(), []core.DeviceAddress{{ID: body.ID, Name: body.Name, IP: body.IP, Port: body.Port}})
	if len(res.Data) == 0 {
		return res.Err()
	}
	addr := res.Data[0]
	snap, _ := s.sess.Snapshot(addr.ID)
	writeJSON(w, http.StatusCreated, DeviceState{Device: addr, Snapshot: snap})
	return nil
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) error {
	res := s.sess.Discover(r.Context())
	found := res.Data
	if found == nil {
		found = []core.DeviceAddress{}
	}
	body := map[string]any{"devices": found}
	if res.HasErrors() {
		body["errors"] = res.ErrorSummary()
	}
	writeJSON(w, http.StatusOK, body)
	return nil
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) error {
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	addr, _ := s.sess.Store().Device(id)
	snap, _ := s.sess.Snapshot(id)
	writeJSON(w, http.StatusOK, DeviceState{Device: addr, Snapshot: snap})
	return nil
}

func (s *Server) forgetDevice(w http.ResponseWriter, r *http.Request) error {
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	s.sess.ForgetDevice(id)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) refreshDevice(w http.ResponseWriter, r *http.Request) error {
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	res := s.sess.Refresh(r.Context(), id)
	addr, _ := s.sess.Store().Device(id)
	body := map[string]any{"device": addr, "snapshot": res.Data}
	if res.HasErrors() {
		body["errors"] = res.ErrorSummary()
	}
	writeJSON(w, http.StatusOK, body)
	return nil
}

// control runs fn against the {id} device and replies 202; the refreshed
// state arrives over /ws.
func (s *Server) control(w http.ResponseWriter, r *http.Request, fn func(id string) error) error {
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	if err := fn(id); err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
	return nil
}

func (s *Server) setVolume(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Level *int `json:"level"`
		Delta int  `json:"delta"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	return s.control(w, r, func(id string) error {
		if body.Level == nil {
			_, err := s.sess.Controls().AdjustVolume(r.Context(), id, body.Delta)
			return err
		}
		return s.sess.Controls().SetVolume(r.Context(), id, *body.Level)
	})
}

func (s *Server) setMute(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Mute *bool `json:"mute"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	return s.control(w, r, func(id string) error {
		if body.Mute == nil {
			return s.sess.Controls().ToggleMute(r.Context(), id)
		}
		return s.sess.Controls().SetMute(r.Context(), id, *body.Mute)
	})
}

func (s *Server) setBass(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Level int `json:"level"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	return s.control(w, r, func(id string) error {
		return s.sess.Controls().SetBass(r.Context(), id, body.Level)
	})
}

func (s *Server) sendKey(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	return s.control(w, r, func(id string) error {
		return s.sess.Controls().SendKey(r.Context(), id, core.Key(body.Key))
	})
}

func (s *Server) selectPreset(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Slot int `json:"slot"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	return s.control(w, r, func(id string) error {
		return s.sess.Controls().SelectPreset(r.Context(), id, body.Slot)
	})
}

func (s *Server) selectSource(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Source  string `json:"source"`
		Account string `json:"account"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if body.Source == "" {
		return badRequest("source is required")
	}
	return s.control(w, r, func(id string) error {
		return s.sess.Controls().SelectSource(r.Context(), id, body.Source, body.Account)
	})
}

func (s *Server) getZone(w http.ResponseWriter, r *http.Request) error {
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"zone": s.sess.Zones().View(id)})
	return nil
}

func (s *Server) createZone(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Master  string   `json:"master"`
		Members []string `json:"members"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if body.Master == "" || len(body.Members) == 0 {
		return badRequest("master and members are required")
	}
	master, err := s.sess.Resolve(body.Master)
	if err != nil {
		return err
	}
	members := make([]string, 0, len(body.Members))
	for _, m := range body.Members {
		id, err := s.sess.Resolve(m)
		if err != nil {
			return err
		}
		members = append(members, id)
	}

	res, err := s.sess.Zones().Create(r.Context(), master, members)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}

func (s *Server) addZoneMember(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Member string `json:"member"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	master, err := s.device(r, "id")
	if err != nil {
		return err
	}
	member, err := s.sess.Resolve(body.Member)
	if err != nil {
		return err
	}
	res, err := s.sess.Zones().AddMember(r.Context(), master, member)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}

func (s *Server) removeZoneMember(w http.ResponseWriter, r *http.Request) error {
	master, err := s.device(r, "id")
	if err != nil {
		return err
	}
	member, err := s.device(r, "member")
	if err != nil {
		return err
	}
	res, err := s.sess.Zones().RemoveMember(r.Context(), master, member)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}

func (s *Server) dissolveZone(w http.ResponseWriter, r *http.Request) error {
	master, err := s.device(r, "id")
	if err != nil {
		return err
	}
	res, err := s.sess.Zones().Dissolve(r.Context(), master)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}

func (s *Server) playEverywhere(w http.ResponseWriter, r *http.Request) error {
	master, err := s.device(r, "id")
	if err != nil {
		return err
	}
	res, err := s.sess.Zones().PlayEverywhere(r.Context(), master)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}

func (s *Server) setZoneVolume(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Level int `json:"level"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	id, err := s.device(r, "id")
	if err != nil {
		return err
	}
	res, err := s.sess.Zones().SetVolume(r.Context(), id, body.Level)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, partial(res))
	return nil
}
