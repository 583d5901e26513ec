// Package loan 定义贷款申请人及审批结果
package loan

import (
	"fmt"
	"strings"
	"time"
)

// EmploymentType 就业类型
type EmploymentType string

const (
	Business     EmploymentType = "Business"
	Salaried     EmploymentType = "Salaried"
	SelfEmployed EmploymentType = "Self-Employed"
)

// EmploymentTypes 页面下拉框中的就业类型（按字母顺序）
func EmploymentTypes() []EmploymentType {
	return []EmploymentType{Business, Salaried, SelfEmployed}
}

// Valid 是否属于固定词表
func (e EmploymentType) Valid() bool {
	for _, t := range EmploymentTypes() {
		if t == e {
			return true
		}
	}
	return false
}

// Range 数值字段的取值范围
type Range struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Contains 判断值是否在范围内
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// 表单控件范围
var (
	AgeRange         = Range{Min: 18, Max: 60, Default: 30}
	IncomeRange      = Range{Min: 20000, Max: 200000, Default: 50000}
	CreditScoreRange = Range{Min: 300, Max: 900, Default: 700}
	LoanAmountRange  = Range{Min: 100000, Max: 1000000, Default: 300000}
	DependentsRange  = Range{Min: 0, Max: 5, Default: 1}
)

// DefaultEmployment 默认就业类型
const DefaultEmployment = Salaried

// Applicant 贷款申请人
type Applicant struct {
	Age         int            `json:"age" yaml:"age"`
	Income      int            `json:"income" yaml:"income"`
	CreditScore int            `json:"credit_score" yaml:"credit_score"`
	LoanAmount  int            `json:"loan_amount" yaml:"loan_amount"`
	Employment  EmploymentType `json:"employment_type" yaml:"employment_type"`
	Dependents  int            `json:"dependents" yaml:"dependents"`
}

// DefaultApplicant 返回表单默认值
func DefaultApplicant() Applicant {
	return Applicant{
		Age:         AgeRange.Default,
		Income:      IncomeRange.Default,
		CreditScore: CreditScoreRange.Default,
		LoanAmount:  LoanAmountRange.Default,
		Employment:  DefaultEmployment,
		Dependents:  DependentsRange.Default,
	}
}

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 申请人校验错误，包含所有出错字段
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid applicant: " + strings.Join(parts, "; ")
}

// Validate 校验申请人各字段
func (a Applicant) Validate() error {
	var fields []FieldError
	check := func(name string, v int, r Range) {
		if !r.Contains(v) {
			fields = append(fields, FieldError{
				Field:   name,
				Message: fmt.Sprintf("must be between %d and %d, got %d", r.Min, r.Max, v),
			})
		}
	}
	check("age", a.Age, AgeRange)
	check("income", a.Income, IncomeRange)
	check("credit_score", a.CreditScore, CreditScoreRange)
	check("loan_amount", a.LoanAmount, LoanAmountRange)
	check("dependents", a.Dependents, DependentsRange)
	if !a.Employment.Valid() {
		fields = append(fields, FieldError{
			Field:   "employment_type",
			Message: fmt.Sprintf("unknown employment type %q", string(a.Employment)),
		})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Key 申请人的缓存键
func (a Applicant) Key() string {
	return fmt.Sprintf("%d|%d|%d|%d|%s|%d",
		a.Age, a.Income, a.CreditScore, a.LoanAmount, a.Employment, a.Dependents)
}

// 审批结果提示语
const (
	ApprovedMessage = "Congratulations! Loan Approved"
	RejectedMessage = "Sorry, Loan Rejected. Please Improve Credit Profile"
)

// 标签值
const (
	LabelRejected = 0
	LabelApproved = 1
)

// MessageFor 根据标签返回提示语
func MessageFor(label int) string {
	if label == LabelApproved {
		return ApprovedMessage
	}
	return RejectedMessage
}

// Decision 审批结果
type Decision struct {
	ID         string    `json:"id"`
	Approved   bool      `json:"approved"`
	Label      int       `json:"label"`
	Confidence float64   `json:"confidence"`
	Message    string    `json:"message"`
	Applicant  Applicant `json:"applicant"`
	Model      string    `json:"model"`
	DecidedAt  time.Time `json:"decided_at"`
}
