package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// listEntries serves GET /companies/{companyID}/entries?from=&to=. Both
// bounds default to the current week.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	from, to := timecalc.WeekRange(s.now())

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := timecalc.ParseDate(v, time.Local)
		if err != nil {
			JSONError(w, NewBadRequest("invalid from date"))
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := timecalc.ParseDate(v, time.Local)
		if err != nil {
			JSONError(w, NewBadRequest("invalid to date"))
			return
		}
		to = timecalc.EndOfDay(t)
	}
	if to.Before(from) {
		JSONError(w, NewBadRequest("to is before from"))
		return
	}

	entries, err := s.backend.List(r.Context(), companyID, from, to)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	OK(w, entries)
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	var entry model.TimeEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	created, err := s.backend.Create(r.Context(), entry)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	Created(w, created)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	var patch model.EntryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	if patch.Status != nil {
		if _, err := model.ParseStatus(string(*patch.Status)); err != nil {
			JSONError(w, NewValidationError(err.Error()))
			return
		}
	}
	updated, err := s.backend.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	OK(w, updated)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	NoContent(w)
}

// PaycycleResponse is a paycycle with its status derived at request time.
type PaycycleResponse struct {
	model.Paycycle
	Status model.PaycycleStatus `json:"status"`
}

// CompanyResponse is a company with derived paycycle statuses.
type CompanyResponse struct {
	model.Company
	Paycycles []PaycycleResponse `json:"paycycles"`
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		JSONError(w, NewNotFound("no company directory configured"))
		return
	}
	c, err := s.directory.GetCompany(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	now := s.now()
	resp := CompanyResponse{Company: c, Paycycles: make([]PaycycleResponse, 0, len(c.Paycycles))}
	for _, p := range c.Paycycles {
		resp.Paycycles = append(resp.Paycycles, PaycycleResponse{Paycycle: p, Status: p.StatusAt(now)})
	}
	OK(w, resp)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		OK(w, []model.Project{})
		return
	}
	projects, err := s.directory.ListProjects(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	OK(w, projects)
}
