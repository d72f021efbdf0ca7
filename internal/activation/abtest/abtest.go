// Package abtest implements the statistical significance tests used to
// compare a control and treatment strategy: two-sample t-test,
// Mann-Whitney U, chi-square win-rate test, a Sharpe-ratio difference
// test, and a Sequential Probability Ratio Test for early stopping.
// Grounded on strategy_versioning/statistical_tests.py's StatisticalTester.
package abtest

import (
	"math"
	"sort"
)

// SignificanceTest is the result of an A/B comparison between a
// control and treatment sample set.
type SignificanceTest struct {
	TestName        string
	Statistic       float64
	PValue          float64
	IsSignificant   bool
	ConfidenceLevel float64
	EffectSize      float64
	ControlMean     float64
	TreatmentMean   float64
}

// TTest runs a two-sample (equal-variance) t-test and reports Cohen's
// d as the effect size, matching scipy's ttest_ind default.
func TTest(control, treatment []float64, confidenceLevel float64) SignificanceTest {
	name := "t-test"
	if len(control) < 2 || len(treatment) < 2 {
		return SignificanceTest{TestName: name, PValue: 1, ConfidenceLevel: confidenceLevel}
	}

	n1, n2 := float64(len(control)), float64(len(treatment))
	m1, m2 := mean(control), mean(treatment)
	v1, v2 := sampleVariance(control, m1), sampleVariance(treatment, m2)

	pooledVar := ((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2)
	se := math.Sqrt(pooledVar * (1/n1 + 1/n2))

	statistic := 0.0
	if se > 0 {
		statistic = (m2 - m1) / se
	}

	df := n1 + n2 - 2
	pValue := 2 * (1 - studentTCDF(math.Abs(statistic), df))

	pooledStd := math.Sqrt((v1 + v2) / 2)
	effectSize := 0.0
	if pooledStd > 0 {
		effectSize = (m2 - m1) / pooledStd
	}

	alpha := 1 - confidenceLevel
	return SignificanceTest{
		TestName: name, Statistic: statistic, PValue: pValue,
		IsSignificant: pValue < alpha, ConfidenceLevel: confidenceLevel,
		EffectSize: effectSize, ControlMean: m1, TreatmentMean: m2,
	}
}

// MannWhitneyTest is the non-parametric alternative to TTest: it ranks
// the pooled samples and tests the resulting U statistic against its
// normal approximation, two-sided.
func MannWhitneyTest(control, treatment []float64, confidenceLevel float64) SignificanceTest {
	name := "mann-whitney"
	if len(control) < 2 || len(treatment) < 2 {
		return SignificanceTest{TestName: name, PValue: 1, ConfidenceLevel: confidenceLevel}
	}

	n1, n2 := len(control), len(treatment)
	type labeled struct {
		value       float64
		fromControl bool
	}
	pooled := make([]labeled, 0, n1+n2)
	for _, v := range control {
		pooled = append(pooled, labeled{v, true})
	}
	for _, v := range treatment {
		pooled = append(pooled, labeled{v, false})
	}
	sort.Slice(pooled, func(i, j int) bool { return pooled[i].value < pooled[j].value })

	ranks := make([]float64, len(pooled))
	i := 0
	for i < len(pooled) {
		j := i
		for j+1 < len(pooled) && pooled[j+1].value == pooled[i].value {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for x := i; x <= j; x++ {
			ranks[x] = avgRank
		}
		i = j + 1
	}

	rankSumControl := 0.0
	for idx, p := range pooled {
		if p.fromControl {
			rankSumControl += ranks[idx]
		}
	}

	nf1, nf2 := float64(n1), float64(n2)
	u1 := rankSumControl - nf1*(nf1+1)/2
	u2 := nf1*nf2 - u1
	u := math.Min(u1, u2)

	meanU := nf1 * nf2 / 2
	sigmaU := math.Sqrt(nf1 * nf2 * (nf1 + nf2 + 1) / 12)

	z := 0.0
	if sigmaU > 0 {
		z = (u - meanU) / sigmaU
	}
	pValue := 2 * (1 - normalCDF(math.Abs(z)))

	alpha := 1 - confidenceLevel
	return SignificanceTest{
		TestName: name, Statistic: u, PValue: pValue,
		IsSignificant: pValue < alpha, ConfidenceLevel: confidenceLevel,
		ControlMean: median(control), TreatmentMean: median(treatment),
	}
}

// ChiSquareTest compares control and treatment win rates via a 2x2
// contingency table with Yates' continuity correction, matching
// scipy.stats.chi2_contingency's default for 2x2 tables (df=1).
func ChiSquareTest(controlWins, controlLosses, treatmentWins, treatmentLosses int, confidenceLevel float64) SignificanceTest {
	cw, cl := float64(controlWins), float64(controlLosses)
	tw, tl := float64(treatmentWins), float64(treatmentLosses)

	total := cw + cl + tw + tl
	if total == 0 {
		return SignificanceTest{TestName: "chi-square", PValue: 1, ConfidenceLevel: confidenceLevel}
	}

	rowControl, rowTreatment := cw+cl, tw+tl
	colWin, colLoss := cw+tw, cl+tl

	expected := func(row, col float64) float64 { return row * col / total }
	cell := func(observed, exp float64) float64 {
		d := math.Abs(observed-exp) - 0.5
		if d < 0 {
			d = 0
		}
		return d * d / exp
	}

	statistic := 0.0
	if expControlWin := expected(rowControl, colWin); expControlWin > 0 {
		statistic += cell(cw, expControlWin)
	}
	if expControlLoss := expected(rowControl, colLoss); expControlLoss > 0 {
		statistic += cell(cl, expControlLoss)
	}
	if expTreatmentWin := expected(rowTreatment, colWin); expTreatmentWin > 0 {
		statistic += cell(tw, expTreatmentWin)
	}
	if expTreatmentLoss := expected(rowTreatment, colLoss); expTreatmentLoss > 0 {
		statistic += cell(tl, expTreatmentLoss)
	}

	// chi-square CDF at df=1 reduces to an error function.
	pValue := 1 - math.Erf(math.Sqrt(statistic/2))

	alpha := 1 - confidenceLevel
	controlWinRate, treatmentWinRate := 0.0, 0.0
	if rowControl > 0 {
		controlWinRate = cw / rowControl
	}
	if rowTreatment > 0 {
		treatmentWinRate = tw / rowTreatment
	}

	return SignificanceTest{
		TestName: "chi-square", Statistic: statistic, PValue: pValue,
		IsSignificant: pValue < alpha, ConfidenceLevel: confidenceLevel,
		ControlMean: controlWinRate, TreatmentMean: treatmentWinRate,
	}
}

// SharpeDifferenceTest compares the annualized Sharpe ratios of two
// return series. It approximates significance with a t-test on the
// raw returns (the same shortcut statistical_tests.py's
// sharpe_ratio_test takes) since the exact sampling distribution of a
// Sharpe-ratio difference has no closed form here.
func SharpeDifferenceTest(controlReturns, treatmentReturns []float64, confidenceLevel float64) SignificanceTest {
	name := "sharpe-ratio"
	if len(controlReturns) < 2 || len(treatmentReturns) < 2 {
		return SignificanceTest{TestName: name, PValue: 1, ConfidenceLevel: confidenceLevel}
	}

	controlSharpe := AnnualizedSharpe(controlReturns, 0, 252)
	treatmentSharpe := AnnualizedSharpe(treatmentReturns, 0, 252)

	result := TTest(controlReturns, treatmentReturns, confidenceLevel)
	result.TestName = name
	result.ControlMean = controlSharpe
	result.TreatmentMean = treatmentSharpe
	result.EffectSize = treatmentSharpe - controlSharpe
	return result
}

// AnnualizedSharpe computes the Sharpe ratio of a return series over
// riskFreeRate, annualized by sqrt(periodsPerYear) (252 for daily
// returns, 365 for crypto's 24/7 daily bars).
func AnnualizedSharpe(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate
	}
	m := mean(excess)
	std := math.Sqrt(sampleVariance(excess, m))
	if std == 0 {
		return 0
	}
	return (m / std) * math.Sqrt(periodsPerYear)
}

// SPRTDecision is the outcome of a SequentialProbabilityRatioTest: the
// test either recommends stopping in favor of one arm or continuing
// to collect data.
type SPRTDecision string

const (
	SPRTContinue        SPRTDecision = "continue"
	SPRTTreatmentWins    SPRTDecision = "treatment_wins"
	SPRTControlWins      SPRTDecision = "control_wins"
)

// SPRTResult is the outcome of a SequentialProbabilityRatioTest.
type SPRTResult struct {
	Decision            SPRTDecision
	LogLikelihoodRatio  float64
	ThresholdUpper      float64
	ThresholdLower      float64
	ControlWinRate      float64
	TreatmentWinRate    float64
}

// SequentialProbabilityRatioTest runs Wald's SPRT over win/loss counts
// for a control and treatment arm, allowing an A/B test to stop early
// once the log-likelihood ratio crosses either boundary set by alpha
// (false-positive rate) and beta (false-negative rate).
func SequentialProbabilityRatioTest(controlWins, controlLosses, treatmentWins, treatmentLosses int, alpha, beta float64) SPRTResult {
	controlTotal := controlWins + controlLosses
	treatmentTotal := treatmentWins + treatmentLosses
	if controlTotal == 0 || treatmentTotal == 0 {
		return SPRTResult{Decision: SPRTContinue}
	}

	pControl := float64(controlWins) / float64(controlTotal)
	pTreatment := float64(treatmentWins) / float64(treatmentTotal)

	llr := 0.0
	if pControl > 0 && pTreatment > 0 && pControl < 1 && pTreatment < 1 {
		llr = float64(treatmentWins)*math.Log(pTreatment/pControl) +
			float64(treatmentLosses)*math.Log((1-pTreatment)/(1-pControl))
		// The magnitude above grows with the gap between the arms but
		// is never negative; sign it by direction so a treatment that
		// underperforms control drifts toward the lower boundary.
		if pTreatment < pControl {
			llr = -llr
		}
	}

	thresholdUpper := math.Log((1 - beta) / alpha)
	thresholdLower := math.Log(beta / (1 - alpha))

	decision := SPRTContinue
	switch {
	case llr >= thresholdUpper:
		decision = SPRTTreatmentWins
	case llr <= thresholdLower:
		decision = SPRTControlWins
	}

	return SPRTResult{
		Decision:           decision,
		LogLikelihoodRatio: llr,
		ThresholdUpper:     thresholdUpper,
		ThresholdLower:     thresholdLower,
		ControlWinRate:     pControl,
		TreatmentWinRate:   pTreatment,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleVariance(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// normalCDF is the standard normal CDF via the error function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// studentTCDF evaluates the Student's t CDF using the regularized
// incomplete beta function, the standard closed form for this
// distribution.
func studentTCDF(t, df float64) float64 {
	if df <= 0 {
		return 0.5
	}
	x := df / (df + t*t)
	ib := regularizedIncompleteBeta(x, df/2, 0.5)
	if t > 0 {
		return 1 - 0.5*ib
	}
	return 0.5 * ib
}

// regularizedIncompleteBeta computes I_x(a, b) via the continued
// fraction expansion (Numerical Recipes' betacf).
func regularizedIncompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lnBeta := lgamma(a+b) - lgamma(a) - lgamma(b) + a*math.Log(x) + b*math.Log(1-x)
	front := math.Exp(lnBeta)

	if x < (a+1)/(a+b+2) {
		return front * betacf(x, a, b) / a
	}
	return 1 - front*betacf(1-x, b, a)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func betacf(x, a, b float64) float64 {
	const maxIter = 200
	const eps = 3e-12
	const fpmin = 1e-300

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpmin {
		d = fpmin
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		mf := float64(m)
		m2 := 2 * mf

		aa := mf * (b - mf) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		h *= d * c

		aa = -(a + mf) * (qab + mf) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}
