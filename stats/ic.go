package stats

import "math"

// InformationCriteria holds likelihood-based model selection scores.
type InformationCriteria struct {
	AIC    float64 `json:"aic" yaml:"aic"`
	AICc   float64 `json:"aicc" yaml:"aicc"`
	BIC    float64 `json:"bic" yaml:"bic"`
	LogLik float64 `json:"log_lik" yaml:"log_lik"`
}

// GaussianLogLik is the log-likelihood of residuals under N(0, sigma2).
func GaussianLogLik(residuals []float64, sigma2 float64) float64 {
	if sigma2 <= 0 {
		return math.Inf(-1)
	}
	n := float64(len(residuals))
	sse := 0.0
	for _, r := range residuals {
		sse += r * r
	}
	return -n/2*math.Log(2*math.Pi) - n/2*math.Log(sigma2) - sse/(2*sigma2)
}

// CalculateIC derives AIC, AICc and BIC from a log-likelihood.
// AICc is +Inf when there are too few observations for the correction.
func CalculateIC(logLik float64, nObs, nParams int) *InformationCriteria {
	k := float64(nParams)
	n := float64(nObs)

	aic := -2*logLik + 2*k
	aicc := math.Inf(1)
	if n-k-1 > 0 {
		aicc = aic + 2*k*(k+1)/(n-k-1)
	}

	return &InformationCriteria{
		AIC:    aic,
		AICc:   aicc,
		BIC:    -2*logLik + k*math.Log(n),
		LogLik: logLik,
	}
}
