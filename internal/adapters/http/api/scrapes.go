package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/adapters/mq/queue"
	"github.com/okian/muster/internal/adapters/repository"
	"github.com/okian/muster/internal/domain/model"
)

// scrapeRequest is the body of POST /scrapes.
type scrapeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r scrapeRequest) window() (model.Window, error) {
	start, err := parseTime(r.Start)
	if err != nil {
		return model.Window{}, errors.Wrap(err, "start")
	}
	end, err := parseTime(r.End)
	if err != nil {
		return model.Window{}, errors.Wrap(err, "end")
	}
	w := model.NewWindow(start, end)
	return w, w.Validate()
}

// parseTime accepts the upstream layout or RFC3339.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Mark(errors.New("missing timestamp"), model.ErrInvalidWindow)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := model.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, errors.Mark(
			errors.Newf("invalid timestamp %q; use %q or RFC3339", s, model.TimestampLayout),
			model.ErrInvalidWindow)
	}
	return t, nil
}

type acceptedResponse struct {
	ID    string           `json:"id"`
	State repository.State `json:"state"`
}

// jobView is the body of GET /scrapes/{id}.
type jobView struct {
	ID        string                   `json:"id"`
	Start     string                   `json:"start"`
	End       string                   `json:"end"`
	State     repository.State         `json:"state"`
	Busy      bool                     `json:"busy"`
	Date      string                   `json:"date,omitempty"`
	PerPlayer map[string]float64       `json:"per_player,omitempty"`
	Records   []model.AttendanceRecord `json:"records,omitempty"`
	Messages  []repository.Message     `json:"messages"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func newJobView(j repository.Job) jobView {
	v := jobView{
		ID:        j.ID,
		Start:     j.Window.Start.Format(model.TimestampLayout),
		End:       j.Window.End.Format(model.TimestampLayout),
		State:     j.State,
		Busy:      j.Busy,
		PerPlayer: j.PerPlayer,
		Messages:  j.Messages,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Date != nil {
		v.Date = j.Date.Format(time.DateOnly)
	}
	if len(j.PerPlayer) > 0 {
		v.Records = model.Result{PerPlayer: j.PerPlayer}.Records()
	}
	return v
}

// ScrapesHandler handles scrape job requests.
type ScrapesHandler struct {
	deps Dependencies
}

// NewScrapesHandler creates a new scrapes handler.
func NewScrapesHandler(deps Dependencies) *ScrapesHandler {
	return &ScrapesHandler{deps: deps}
}

// HandlePostScrape handles POST /scrapes requests.
func (h *ScrapesHandler) HandlePostScrape(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_scrape"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	win, err := req.window()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", wrapKind(op, ErrBadRequest, err))
		return
	}

	job, err := h.deps.Submit(r.Context(), win)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, acceptedResponse{ID: job.ID, State: job.State})
	case errors.Is(err, model.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", wrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// HandleGetScrape handles GET /scrapes/{id} requests.
func (h *ScrapesHandler) HandleGetScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/scrapes/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	job, err := h.deps.Job(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}
