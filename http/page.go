package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"loanguard/approval"
	"loanguard/loan"
	"loanguard/ml"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	pageTitle    = "AI Loan Approval System"
	pageSubtitle = "Smart Decision Tree Powered Banking Intelligence"
	pageFooter   = "AI Banking System • Powered by Decision Tree"
)

// FormRanges 表单控件范围
type FormRanges struct {
	Age, Income, CreditScore, LoanAmount, Dependents loan.Range
}

// PageData 页面渲染数据
type PageData struct {
	Title           string
	Subtitle        string
	Footer          string
	Form            loan.Applicant
	Ranges          FormRanges
	EmploymentTypes []loan.EmploymentType
	Accuracy        string
	RequestedLoan   string
	Result          *loan.Decision
	Errors          []loan.FieldError
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, loan.DefaultApplicant(), nil, nil, nil)
}

func (h *Handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	applicant, err := parseApplicantForm(r)
	if err != nil {
		h.renderPage(w, r, http.StatusBadRequest, applicant, nil, nil, fieldErrors(err))
		return
	}

	// 结果与准确率取自同一个模型
	decision, snap, err := h.service.DecideWithSnapshot(r.Context(), applicant)
	if err != nil {
		if fields := fieldErrors(err); fields != nil {
			h.renderPage(w, r, http.StatusBadRequest, applicant, nil, nil, fields)
			return
		}
		if errors.Is(err, ml.ErrUnknownLabel) {
			h.renderPage(w, r, http.StatusBadRequest, applicant, nil, nil,
				[]loan.FieldError{{Field: "employment_type", Message: err.Error()}})
			return
		}
		h.logger.Error("decision failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		h.renderPage(w, r, http.StatusInternalServerError, applicant, nil, nil,
			[]loan.FieldError{{Field: "model", Message: "prediction failed"}})
		return
	}
	h.recordDecision(decision)
	h.renderPage(w, r, http.StatusOK, applicant, &snap, &decision, nil)
}

// renderPage 渲染页面；snap 为空时读取当前模型概况
func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, status int, form loan.Applicant, snap *approval.Snapshot, result *loan.Decision, errs []loan.FieldError) {
	data := PageData{
		Title:    pageTitle,
		Subtitle: pageSubtitle,
		Footer:   pageFooter,
		Form:     form,
		Ranges: FormRanges{
			Age:         loan.AgeRange,
			Income:      loan.IncomeRange,
			CreditScore: loan.CreditScoreRange,
			LoanAmount:  loan.LoanAmountRange,
			Dependents:  loan.DependentsRange,
		},
		EmploymentTypes: loan.EmploymentTypes(),
		Accuracy:        "n/a",
		RequestedLoan:   h.formatRupees(form.LoanAmount),
		Result:          result,
		Errors:          errs,
	}
	if snap == nil {
		if current, err := h.service.Snapshot(r.Context()); err == nil {
			snap = &current
		} else {
			h.logger.Warn("model snapshot unavailable", zap.Error(err))
		}
	}
	if snap != nil {
		data.Accuracy = formatPercent(snap.Accuracy)
	}

	// 先渲染到缓冲区，出错时不输出半个页面
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("template error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "template rendering failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) formatRupees(amount int) string {
	return h.printer.Sprintf("₹ %d", amount)
}

func formatPercent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 2, 64) + "%"
}

// parseApplicantForm 解析表单；缺省字段取默认值，非整数字段报错
func parseApplicantForm(r *http.Request) (loan.Applicant, error) {
	a := loan.DefaultApplicant()
	if err := r.ParseForm(); err != nil {
		return a, &loan.ValidationError{Fields: []loan.FieldError{{Field: "form", Message: err.Error()}}}
	}

	var fields []loan.FieldError
	readInt := func(name string, dst *int) {
		raw := strings.TrimSpace(r.PostForm.Get(name))
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, loan.FieldError{Field: name, Message: fmt.Sprintf("%q is not a whole number", raw)})
			return
		}
		*dst = v
	}
	readInt("age", &a.Age)
	readInt("income", &a.Income)
	readInt("credit_score", &a.CreditScore)
	readInt("loan_amount", &a.LoanAmount)
	readInt("dependents", &a.Dependents)
	if v := strings.TrimSpace(r.PostForm.Get("employment_type")); v != "" {
		a.Employment = loan.EmploymentType(v)
	}

	if len(fields) > 0 {
		return a, &loan.ValidationError{Fields: fields}
	}
	return a, a.Validate()
}

func fieldErrors(err error) []loan.FieldError {
	var verr *loan.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
