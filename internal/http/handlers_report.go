package http

import (
	"net/http"

	"expensedash/internal/core"
)

const msgNoReport = "No report available for this month."

type (
	reportsPageView struct {
		Month core.Month
	}

	reportView struct {
		Month  core.Month
		Report core.Report
		Error  string
	}
)

func (s *Server) handleReportsPage(w http.ResponseWriter, r *http.Request) {
	view := reportsPageView{Month: monthParam(r, s.now())}
	s.renderPage(w, r, http.StatusOK, "reports", pageData{Title: "Monthly Reports", Active: "reports", View: view})
}

func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	report, err := s.backend.MonthlyReport(r.Context(), sess.Token, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgNoReport)
		if handled {
			return
		}
		s.partial(r, "report_result", reportView{Month: m, Error: msg}).Write(w)
		return
	}
	s.partial(r, "report_result", reportView{Month: m, Report: report}).Write(w)
}
