package loan

// Record 带标签的训练样本
type Record struct {
	Applicant
	Approved bool `json:"approved"`
}

// Label 样本标签
func (r Record) Label() int {
	if r.Approved {
		return LabelApproved
	}
	return LabelRejected
}

// FeatureNames 特征列顺序
func FeatureNames() []string {
	return []string{"Age", "Income", "Credit_Score", "Loan_Amount", "Employment_Type", "Dependents"}
}

// EmploymentColumn 就业类型所在的特征列
const EmploymentColumn = 4

// SampleRecords 内置的六行训练数据
func SampleRecords() []Record {
	return []Record{
		{Applicant: Applicant{Age: 25, Income: 30000, CreditScore: 650, LoanAmount: 200000, Employment: Salaried, Dependents: 1}, Approved: false},
		{Applicant: Applicant{Age: 40, Income: 80000, CreditScore: 720, LoanAmount: 500000, Employment: SelfEmployed, Dependents: 2}, Approved: true},
		{Applicant: Applicant{Age: 35, Income: 50000, CreditScore: 680, LoanAmount: 300000, Employment: Salaried, Dependents: 3}, Approved: true},
		{Applicant: Applicant{Age: 50, Income: 90000, CreditScore: 750, LoanAmount: 600000, Employment: Business, Dependents: 2}, Approved: true},
		{Applicant: Applicant{Age: 28, Income: 40000, CreditScore: 660, LoanAmount: 250000, Employment: Salaried, Dependents: 0}, Approved: false},
		{Applicant: Applicant{Age: 45, Income: 75000, CreditScore: 710, LoanAmount: 450000, Employment: SelfEmployed, Dependents: 1}, Approved: true},
	}
}

// Vector 将申请人转换为特征向量，就业类型使用给定编码
func (a Applicant) Vector(employmentCode int) []float64 {
	return []float64{
		float64(a.Age),
		float64(a.Income),
		float64(a.CreditScore),
		float64(a.LoanAmount),
		float64(employmentCode),
		float64(a.Dependents),
	}
}
